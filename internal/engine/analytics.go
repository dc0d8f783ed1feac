package engine

import (
	"sort"
	"time"

	"stageline/internal/config"
	"stageline/internal/domain"
)

// Analytics windows are trailing day counts selectable by the caller.
const (
	WindowWeek    = 7
	WindowMonth   = 30
	WindowQuarter = 90
)

// WeekBucket counts terminal-stage completions for one calendar week.
type WeekBucket struct {
	WeekStart time.Time `json:"week_start" format:"date-time"`
	Count     int       `json:"count"`
}

// CycleTimeBucket counts projects whose creation-to-completion span floored
// to whole days equals Days.
type CycleTimeBucket struct {
	Days  int `json:"days"`
	Count int `json:"count"`
}

// StageMetric describes the current population of one non-terminal stage.
type StageMetric struct {
	StageID      string  `json:"stage_id"`
	Label        string  `json:"label"`
	Count        int     `json:"count"`
	AvgDwellDays float64 `json:"avg_dwell_days"`
	WIPLimit     *int    `json:"wip_limit,omitempty"`
	WIPViolation bool    `json:"wip_violation"`
}

// RiskSlice accumulates count and summed monetary value for one risk level.
type RiskSlice struct {
	Level      domain.RiskLevel `json:"level"`
	Count      int              `json:"count"`
	ValueCents int64            `json:"value_cents"`
}

// Analytics is the full aggregation result for one window.
type Analytics struct {
	WindowDays  int               `json:"window_days"`
	Throughput  []WeekBucket      `json:"throughput"`
	CycleTime   []CycleTimeBucket `json:"cycle_time"`
	Stages      []StageMetric     `json:"stages"`
	Bottlenecks []StageMetric     `json:"bottlenecks"`
	Risk        []RiskSlice       `json:"risk"`
}

// Aggregate is a pure reduction over a project snapshot plus an injected now.
// No state persists between calls, and empty input yields zeroed structures
// rather than errors.
func Aggregate(cfg *config.Pipeline, projects []domain.Project, windowDays int, now time.Time) Analytics {
	if windowDays <= 0 {
		windowDays = WindowMonth
	}
	windowStart := now.AddDate(0, 0, -windowDays)

	out := Analytics{WindowDays: windowDays}
	out.Throughput = throughput(projects, windowStart, now)
	out.CycleTime = cycleTime(projects, windowStart, now)
	out.Stages = stageMetrics(cfg, projects, now)
	out.Bottlenecks = rankBottlenecks(out.Stages)
	out.Risk = riskDistribution(cfg, projects, now)
	return out
}

// weekStart returns the UTC Monday midnight beginning t's calendar week.
func weekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}

func throughput(projects []domain.Project, windowStart, now time.Time) []WeekBucket {
	counts := map[time.Time]int{}
	total := 0
	for _, p := range projects {
		if p.CompletedAt == nil {
			continue
		}
		done := p.CompletedAt.UTC()
		if done.Before(windowStart) || done.After(now) {
			continue
		}
		counts[weekStart(done)]++
		total++
	}
	if total == 0 {
		// No completions in the window: an empty slice, not null.
		return []WeekBucket{}
	}
	var buckets []WeekBucket
	for ws := weekStart(windowStart); !ws.After(now); ws = ws.AddDate(0, 0, 7) {
		buckets = append(buckets, WeekBucket{WeekStart: ws, Count: counts[ws]})
	}
	return buckets
}

func cycleTime(projects []domain.Project, windowStart, now time.Time) []CycleTimeBucket {
	counts := map[int]int{}
	for _, p := range projects {
		if p.CompletedAt == nil {
			continue
		}
		done := p.CompletedAt.UTC()
		if done.Before(windowStart) || done.After(now) {
			continue
		}
		days := int(done.Sub(p.CreatedAt).Hours() / 24)
		if days < 0 {
			days = 0
		}
		counts[days]++
	}
	if len(counts) == 0 {
		return []CycleTimeBucket{}
	}
	buckets := make([]CycleTimeBucket, 0, len(counts))
	for days, n := range counts {
		buckets = append(buckets, CycleTimeBucket{Days: days, Count: n})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Days < buckets[j].Days })
	return buckets
}

func stageMetrics(cfg *config.Pipeline, projects []domain.Project, now time.Time) []StageMetric {
	byStage := map[string][]domain.Project{}
	for _, p := range projects {
		byStage[p.Status] = append(byStage[p.Status], p)
	}
	var metrics []StageMetric
	for _, s := range cfg.Stages {
		if cfg.IsTerminal(s.ID) {
			continue
		}
		held := byStage[s.ID]
		m := StageMetric{StageID: s.ID, Label: s.Label, Count: len(held), WIPLimit: s.WIPLimit}
		if len(held) > 0 {
			var totalDays float64
			for _, p := range held {
				totalDays += now.Sub(p.LastActivityAt).Hours() / 24
			}
			m.AvgDwellDays = totalDays / float64(len(held))
		}
		m.WIPViolation = IsWIPViolation(cfg, s.ID, m.Count)
		metrics = append(metrics, m)
	}
	return metrics
}

func rankBottlenecks(stages []StageMetric) []StageMetric {
	ranked := make([]StageMetric, len(stages))
	copy(ranked, stages)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].AvgDwellDays > ranked[j].AvgDwellDays
	})
	return ranked
}

func riskDistribution(cfg *config.Pipeline, projects []domain.Project, now time.Time) []RiskSlice {
	levels := domain.AllRiskLevels()
	index := make(map[domain.RiskLevel]int, len(levels))
	slices := make([]RiskSlice, len(levels))
	for i, lvl := range levels {
		index[lvl] = i
		slices[i] = RiskSlice{Level: lvl}
	}
	for _, p := range projects {
		if cfg.IsTerminal(p.Status) {
			continue
		}
		lvl := ScoreRisk(cfg, p.DueDate, p.Status, now)
		i := index[lvl]
		slices[i].Count++
		slices[i].ValueCents += p.ValueCents
	}
	return slices
}
