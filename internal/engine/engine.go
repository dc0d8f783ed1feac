package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"stageline/internal/config"
	"stageline/internal/domain"
)

// Store is the persistence surface the engine coordinates over. The sqlite
// repo implements it; tests may substitute their own.
type Store interface {
	CreateProject(ctx context.Context, p domain.Project) error
	FetchProject(ctx context.Context, id string) (domain.Project, error)
	FetchProjectsSnapshot(ctx context.Context, f domain.FilterSet) ([]domain.Project, error)
	WriteProjectStage(ctx context.Context, w domain.StageWrite) error
	AppendHistory(ctx context.Context, entry domain.StageHistoryEntry) error
	FetchConfig(ctx context.Context) (*config.Pipeline, error)
	SaveConfig(ctx context.Context, cfg *config.Pipeline) error
	FetchTriggers(ctx context.Context) ([]domain.Trigger, error)
}

// Engine coordinates stage moves, bulk updates, sweeps and analytics over a
// Store. Now is injectable so tests run against a fixed clock.
type Engine struct {
	Store Store
	Now   func() time.Time
}

func New(store Store) Engine {
	return Engine{Store: store, Now: time.Now}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ProjectWithRisk pairs a project snapshot with its recomputed risk level.
type ProjectWithRisk struct {
	domain.Project
	Risk domain.RiskLevel `json:"risk"`
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	ID         string
	Title      string
	CreatorID  string
	DueDate    *time.Time
	ValueCents int64
	Tags       []string
}

// CreateProject inserts a project in the pipeline's initial stage. When no
// due date is given and the initial stage configures due_offset_days, the
// due date is derived from the clock.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Project{}, ValidationError{Msg: "title is required"}
	}
	if strings.TrimSpace(opts.CreatorID) == "" {
		return domain.Project{}, ValidationError{Msg: "creator is required"}
	}
	if opts.ValueCents < 0 {
		return domain.Project{}, ValidationError{Msg: "value_cents must not be negative"}
	}
	cfg, err := e.Store.FetchConfig(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	now := e.now().UTC()
	initial := cfg.InitialStage()
	due := opts.DueDate
	if due == nil {
		if s, ok := cfg.StageByID(initial); ok && s.DueOffsetDays != nil {
			d := now.AddDate(0, 0, *s.DueOffsetDays)
			due = &d
		}
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	p := domain.Project{
		ID:             id,
		Title:          opts.Title,
		CreatorID:      opts.CreatorID,
		Status:         initial,
		DueDate:        due,
		ValueCents:     opts.ValueCents,
		Tags:           opts.Tags,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := e.Store.CreateProject(ctx, p); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ListProjects fetches a filtered snapshot and annotates each project with
// its risk level. Risk-level predicates are resolved here because risk is
// derived, never stored.
func (e Engine) ListProjects(ctx context.Context, f domain.FilterSet) ([]ProjectWithRisk, error) {
	cfg, err := e.Store.FetchConfig(ctx)
	if err != nil {
		return nil, err
	}
	wanted := f.RiskLevels
	f.RiskLevels = nil
	projects, err := e.Store.FetchProjectsSnapshot(ctx, f)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	out := make([]ProjectWithRisk, 0, len(projects))
	for _, p := range projects {
		risk := ScoreRisk(cfg, p.DueDate, p.Status, now)
		if len(wanted) > 0 && !containsRisk(wanted, risk) {
			continue
		}
		out = append(out, ProjectWithRisk{Project: p, Risk: risk})
	}
	return out, nil
}

func containsRisk(levels []domain.RiskLevel, lvl domain.RiskLevel) bool {
	for _, l := range levels {
		if l == lvl {
			return true
		}
	}
	return false
}

// TransitionRequest asks to move one project to a target stage.
type TransitionRequest struct {
	ProjectID   string
	TargetStage string
	Actor       string
	Note        string
	AsAdmin     bool
}

// TransitionResult carries the updated project plus any automation intents
// the move produced. Intents are emitted, never executed, here.
type TransitionResult struct {
	Project domain.Project
	Intents []domain.ActionIntent
}

// ApplyTransition validates and applies a single stage move: graph check,
// locked-stage authority, WIP admission, conditional stage write, history
// append, then trigger evaluation against the committed state.
func (e Engine) ApplyTransition(ctx context.Context, req TransitionRequest) (TransitionResult, error) {
	cfg, err := e.Store.FetchConfig(ctx)
	if err != nil {
		return TransitionResult{}, err
	}
	if !cfg.HasStage(req.TargetStage) {
		return TransitionResult{}, ValidationError{Msg: fmt.Sprintf("unknown stage %q", req.TargetStage)}
	}
	p, err := e.Store.FetchProject(ctx, req.ProjectID)
	if err != nil {
		return TransitionResult{}, err
	}
	from := p.Status
	if !IsValidTransition(cfg, from, req.TargetStage, req.AsAdmin) {
		return TransitionResult{}, InvalidTransitionError{From: from, To: req.TargetStage}
	}
	if limit := cfg.WIPLimit(req.TargetStage); limit != nil {
		held, err := e.Store.FetchProjectsSnapshot(ctx, domain.FilterSet{Stages: []string{req.TargetStage}})
		if err != nil {
			return TransitionResult{}, err
		}
		if !CanAdmit(cfg, req.TargetStage, len(held)) {
			return TransitionResult{}, AdmissionDeniedError{Stage: req.TargetStage, Count: len(held), Limit: *limit}
		}
	}
	now := e.now().UTC()
	w := domain.StageWrite{
		ProjectID:  req.ProjectID,
		FromStage:  from,
		ToStage:    req.TargetStage,
		ActivityAt: now,
	}
	if cfg.IsResolved(req.TargetStage) && p.ApprovedAt == nil {
		w.ApprovedAt = &now
	}
	if cfg.IsTerminal(req.TargetStage) && p.CompletedAt == nil {
		w.CompletedAt = &now
	}
	if err := e.Store.WriteProjectStage(ctx, w); err != nil {
		return TransitionResult{}, mapStageWriteErr(err, req.ProjectID)
	}
	entry := domain.StageHistoryEntry{
		ProjectID: req.ProjectID,
		FromStage: from,
		ToStage:   req.TargetStage,
		Actor:     req.Actor,
		Note:      req.Note,
		CreatedAt: now,
	}
	if err := e.Store.AppendHistory(ctx, entry); err != nil {
		return TransitionResult{}, err
	}
	updated, err := e.Store.FetchProject(ctx, req.ProjectID)
	if err != nil {
		return TransitionResult{}, err
	}
	triggers, err := e.Store.FetchTriggers(ctx)
	if err != nil {
		return TransitionResult{}, err
	}
	intents := EvaluateStageChange(triggers, ChangeEvent{Project: updated, From: from, To: req.TargetStage})
	if s, ok := cfg.StageByID(req.TargetStage); ok && s.AutoNotify {
		intents = append(intents, domain.ActionIntent{
			ProjectID: updated.ID,
			Action: domain.Action{
				Kind:     domain.ActionSendNotification,
				Template: "stage_changed",
			},
		})
	}
	return TransitionResult{Project: updated, Intents: intents}, nil
}

func mapStageWriteErr(err error, projectID string) error {
	if err == domain.ErrStageConflict {
		return ConcurrentModificationError{ProjectID: projectID}
	}
	return err
}

// bulkWorkers bounds in-flight items during a bulk update.
const bulkWorkers = 8

// BulkError reports one failed item of a bulk update.
type BulkError struct {
	ProjectID string `json:"project_id"`
	Error     string `json:"error"`
}

// BulkResult is the outcome of a bulk update. Partial failure is a normal
// result, not an error: the operation itself only errors on context
// cancellation or config load failure.
type BulkResult struct {
	Updated []domain.Project      `json:"updated"`
	Errors  []BulkError           `json:"errors,omitempty"`
	Intents []domain.ActionIntent `json:"intents,omitempty"`
}

// ApplyBulk applies the same target stage to many projects concurrently.
// Items are independent: each validates and commits on its own, and one
// failure never rolls back another's success.
func (e Engine) ApplyBulk(ctx context.Context, projectIDs []string, targetStage, actor, note string, asAdmin bool) (BulkResult, error) {
	results := make([]TransitionResult, len(projectIDs))
	errs := make([]error, len(projectIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkWorkers)
	for i, id := range projectIDs {
		i, id := i, id
		g.Go(func() error {
			results[i], errs[i] = e.ApplyTransition(gctx, TransitionRequest{
				ProjectID:   id,
				TargetStage: targetStage,
				Actor:       actor,
				Note:        note,
				AsAdmin:     asAdmin,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BulkResult{}, err
	}

	var out BulkResult
	for i, id := range projectIDs {
		if errs[i] != nil {
			out.Errors = append(out.Errors, BulkError{ProjectID: id, Error: errs[i].Error()})
			continue
		}
		out.Updated = append(out.Updated, results[i].Project)
		out.Intents = append(out.Intents, results[i].Intents...)
	}
	return out, nil
}

// RunSweep evaluates time- and value-based triggers against every open
// project and returns the intents. Sweeps never mutate storage.
func (e Engine) RunSweep(ctx context.Context) ([]domain.ActionIntent, error) {
	cfg, err := e.Store.FetchConfig(ctx)
	if err != nil {
		return nil, err
	}
	triggers, err := e.Store.FetchTriggers(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := e.Store.FetchProjectsSnapshot(ctx, domain.FilterSet{})
	if err != nil {
		return nil, err
	}
	return EvaluateSweep(cfg, triggers, projects, e.now().UTC()), nil
}

// GetAnalytics aggregates the current snapshot over a trailing window of
// 7, 30 or 90 days.
func (e Engine) GetAnalytics(ctx context.Context, windowDays int) (Analytics, error) {
	switch windowDays {
	case WindowWeek, WindowMonth, WindowQuarter:
	case 0:
		windowDays = WindowMonth
	default:
		return Analytics{}, ValidationError{Msg: fmt.Sprintf("window must be %d, %d or %d days", WindowWeek, WindowMonth, WindowQuarter)}
	}
	cfg, err := e.Store.FetchConfig(ctx)
	if err != nil {
		return Analytics{}, err
	}
	projects, err := e.Store.FetchProjectsSnapshot(ctx, domain.FilterSet{})
	if err != nil {
		return Analytics{}, err
	}
	return Aggregate(cfg, projects, windowDays, e.now().UTC()), nil
}

// GetPipelineConfig returns the active pipeline configuration.
func (e Engine) GetPipelineConfig(ctx context.Context) (*config.Pipeline, error) {
	return e.Store.FetchConfig(ctx)
}

// UpdatePipelineConfig applies a JSON merge patch to the active pipeline,
// validates the result and persists it.
func (e Engine) UpdatePipelineConfig(ctx context.Context, patch []byte) (*config.Pipeline, error) {
	cfg, err := e.Store.FetchConfig(ctx)
	if err != nil {
		return nil, err
	}
	next, err := cfg.MergePatch(patch)
	if err != nil {
		return nil, ValidationError{Msg: err.Error()}
	}
	if err := e.Store.SaveConfig(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// ReplacePipelineConfig validates and persists a full pipeline definition.
func (e Engine) ReplacePipelineConfig(ctx context.Context, next *config.Pipeline) (*config.Pipeline, error) {
	if err := next.Validate(); err != nil {
		return nil, ValidationError{Msg: err.Error()}
	}
	if err := e.Store.SaveConfig(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// ApplyIntent performs the engine-side effect of a change_status intent by
// routing it through the normal transition path, so graph, lock and WIP
// rules still apply. Other intent kinds are external concerns.
func (e Engine) ApplyIntent(ctx context.Context, intent domain.ActionIntent) (TransitionResult, error) {
	if intent.Action.Kind != domain.ActionChangeStatus {
		return TransitionResult{}, ValidationError{Msg: fmt.Sprintf("cannot apply intent of kind %q", intent.Action.Kind)}
	}
	actor := "automation"
	if intent.TriggerName != "" {
		actor = "automation:" + intent.TriggerName
	}
	return e.ApplyTransition(ctx, TransitionRequest{
		ProjectID:   intent.ProjectID,
		TargetStage: intent.Action.Stage,
		Actor:       actor,
		AsAdmin:     false,
	})
}

// DedupeIntents drops repeated intents by key, preserving first-seen order.
func DedupeIntents(intents []domain.ActionIntent) []domain.ActionIntent {
	seen := map[string]bool{}
	out := intents[:0]
	for _, in := range intents {
		k := in.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, in)
	}
	return out
}
