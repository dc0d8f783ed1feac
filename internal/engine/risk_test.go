package engine

import (
	"testing"
	"time"

	"stageline/internal/config"
	"stageline/internal/domain"
)

func TestScoreRisk(t *testing.T) {
	cfg := config.Default()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	due := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	cases := []struct {
		name  string
		due   *time.Time
		stage string
		want  domain.RiskLevel
	}{
		{"no due date", nil, "draft", domain.RiskNone},
		{"yesterday", due(-24 * time.Hour), "draft", domain.RiskCritical},
		{"two days ago", due(-48 * time.Hour), "in_progress", domain.RiskCritical},
		// Less than a day overdue rounds up to zero remaining days.
		{"one hour ago", due(-time.Hour), "draft", domain.RiskHigh},
		{"in twelve hours", due(12 * time.Hour), "draft", domain.RiskHigh},
		{"in one day exactly", due(24 * time.Hour), "draft", domain.RiskHigh},
		{"in two days", due(48 * time.Hour), "in_progress", domain.RiskMedium},
		{"in three days", due(72 * time.Hour), "in_progress", domain.RiskMedium},
		{"in five days", due(5 * 24 * time.Hour), "submitted", domain.RiskLow},
		{"in seven days", due(7 * 24 * time.Hour), "submitted", domain.RiskLow},
		{"in eight days", due(8 * 24 * time.Hour), "draft", domain.RiskNone},
		{"overdue but resolved", due(-72 * time.Hour), "approved", domain.RiskNone},
		{"overdue but paid", due(-72 * time.Hour), "paid", domain.RiskNone},
	}
	for _, c := range cases {
		if got := ScoreRisk(cfg, c.due, c.stage, now); got != c.want {
			t.Errorf("%s: got %s, want %s", c.name, got, c.want)
		}
	}
}

func TestScoreRiskBoundaryCeiling(t *testing.T) {
	cfg := config.Default()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	// 25 hours out rounds up to two days: medium, not high.
	d := now.Add(25 * time.Hour)
	if got := ScoreRisk(cfg, &d, "draft", now); got != domain.RiskMedium {
		t.Fatalf("25h out: got %s, want medium", got)
	}
	// Due exactly now is zero days remaining, not overdue.
	d = now
	if got := ScoreRisk(cfg, &d, "draft", now); got != domain.RiskHigh {
		t.Fatalf("due now: got %s, want high", got)
	}
}
