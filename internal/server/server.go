package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"stageline/internal/config"
	"stageline/internal/dispatch"
	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine     engine.Engine
	Repo       repo.Repo
	Dispatcher *dispatch.Dispatcher
	BasePath   string
	Auth       AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid transition from draft to paid"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Stageline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo))
	hcfg := huma.DefaultConfig("Stageline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerProjects(group, cfg)
	registerMoves(group, cfg)
	registerHistory(group, cfg)
	registerAnalytics(group, cfg)
	registerPipelineConfig(group, cfg)
	registerTriggers(group, cfg)
	registerSavedFilters(group, cfg)
	registerSweep(group, cfg)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var (
		ite engine.InvalidTransitionError
		ade engine.AdmissionDeniedError
		cme engine.ConcurrentModificationError
		ve  engine.ValidationError
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.As(err, &ite):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", err.Error(),
			map[string]any{"from": ite.From, "to": ite.To})
	case errors.As(err, &ade):
		return newAPIError(http.StatusConflict, "wip_limit_exceeded", err.Error(),
			map[string]any{"stage": ade.Stage, "count": ade.Count, "limit": ade.Limit})
	case errors.As(err, &cme):
		return newAPIError(http.StatusConflict, "concurrent_modification", err.Error(),
			map[string]any{"project_id": cme.ProjectID})
	case errors.As(err, &ve):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func (c Config) dispatchAsync(intents []domain.ActionIntent) {
	if c.Dispatcher == nil || len(intents) == 0 {
		return
	}
	go c.Dispatcher.DispatchAll(context.Background(), intents)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type listProjectsInput struct {
	Search    string   `query:"search"`
	Stages    []string `query:"stage"`
	Creators  []string `query:"creator"`
	Risks     []string `query:"risk"`
	DueFrom   string   `query:"due_from"`
	DueTo     string   `query:"due_to"`
	MinValue  string   `query:"min_value_cents"`
	MaxValue  string   `query:"max_value_cents"`
	HasUnread string   `query:"has_unread" enum:",true,false"`
	HasFiles  string   `query:"has_files" enum:",true,false"`
}

func (in listProjectsInput) filterSet() (domain.FilterSet, error) {
	f := domain.FilterSet{
		Search:   in.Search,
		Stages:   in.Stages,
		Creators: in.Creators,
	}
	for _, raw := range in.Risks {
		lvl, ok := domain.ParseRiskLevel(raw)
		if !ok {
			return f, engine.ValidationError{Msg: fmt.Sprintf("unknown risk level %q", raw)}
		}
		f.RiskLevels = append(f.RiskLevels, lvl)
	}
	parseDate := func(raw, name string) (*time.Time, error) {
		if raw == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, engine.ValidationError{Msg: fmt.Sprintf("invalid %s: %v", name, err)}
		}
		return &t, nil
	}
	var err error
	if f.DueFrom, err = parseDate(in.DueFrom, "due_from"); err != nil {
		return f, err
	}
	if f.DueTo, err = parseDate(in.DueTo, "due_to"); err != nil {
		return f, err
	}
	parseCents := func(raw, name string) (*int64, error) {
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, engine.ValidationError{Msg: fmt.Sprintf("invalid %s: %v", name, err)}
		}
		return &v, nil
	}
	if f.MinValueCents, err = parseCents(in.MinValue, "min_value_cents"); err != nil {
		return f, err
	}
	if f.MaxValueCents, err = parseCents(in.MaxValue, "max_value_cents"); err != nil {
		return f, err
	}
	if in.HasUnread != "" {
		v := in.HasUnread == "true"
		f.HasUnread = &v
	}
	if in.HasFiles != "" {
		v := in.HasFiles == "true"
		f.HasFiles = &v
	}
	return f, nil
}

func registerProjects(api huma.API, cfg Config) {
	e := cfg.Engine

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
			ID:         input.Body.ID,
			Title:      input.Body.Title,
			CreatorID:  input.Body.CreatorID,
			DueDate:    input.Body.DueDate,
			ValueCents: input.Body.ValueCents,
			Tags:       input.Body.Tags,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p, "")}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects with derived risk",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *listProjectsInput) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		f, err := input.filterSet()
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListProjects(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := cfg.Repo.FetchProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		pcfg, err := e.GetPipelineConfig(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		risk := engine.ScoreRisk(pcfg, p.DueDate, p.Status, e.Now().UTC())
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p, risk)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project-due-date",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/due-date",
		Summary:     "Set or clear a project's due date",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string         `path:"project_id"`
		Body      DueDateRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		now := e.Now().UTC()
		if err := cfg.Repo.UpdateDueDate(ctx, input.ProjectID, input.Body.DueDate, now); err != nil {
			return nil, handleError(err)
		}
		p, err := cfg.Repo.FetchProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		pcfg, err := e.GetPipelineConfig(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		risk := engine.ScoreRisk(pcfg, p.DueDate, p.Status, now)
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p, risk)}, nil
	})
}

func registerMoves(api huma.API, cfg Config) {
	e := cfg.Engine

	huma.Register(api, huma.Operation{
		OperationID: "move-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/move",
		Summary:     "Move project to a stage",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string      `path:"project_id"`
		Body      MoveRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		principal, _ := principalFromContext(ctx)
		res, err := e.ApplyTransition(ctx, engine.TransitionRequest{
			ProjectID:   input.ProjectID,
			TargetStage: input.Body.Stage,
			Actor:       actorID,
			Note:        input.Body.Note,
			AsAdmin:     principal.IsAdmin,
		})
		if err != nil {
			return nil, handleError(err)
		}
		cfg.dispatchAsync(res.Intents)
		pcfg, err := e.GetPipelineConfig(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		risk := engine.ScoreRisk(pcfg, res.Project.DueDate, res.Project.Status, e.Now().UTC())
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(res.Project, risk)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bulk-move-projects",
		Method:      http.MethodPost,
		Path:        "/projects/bulk/move",
		Summary:     "Move many projects to a stage",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body BulkMoveRequest `json:"body"`
	}) (*struct {
		Body BulkMoveResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(input.Body.ProjectIDs) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "project_ids is required", nil)
		}
		principal, _ := principalFromContext(ctx)
		res, err := e.ApplyBulk(ctx, input.Body.ProjectIDs, input.Body.Stage, actorID, input.Body.Note, principal.IsAdmin)
		if err != nil {
			return nil, handleError(err)
		}
		cfg.dispatchAsync(res.Intents)
		body := BulkMoveResponse{UpdatedCount: len(res.Updated), Errors: res.Errors}
		for _, p := range res.Updated {
			body.Updated = append(body.Updated, projectResponse(p, ""))
		}
		return &struct {
			Body BulkMoveResponse `json:"body"`
		}{Body: body}, nil
	})
}

func registerHistory(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "project-history",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/history",
		Summary:     "Stage history, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Cursor    int64  `query:"cursor"`
		Limit     int    `query:"limit" minimum:"0" maximum:"500"`
	}) (*struct {
		Body HistoryResponse `json:"body"`
	}, error) {
		if _, err := cfg.Repo.FetchProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		limit := input.Limit
		if limit == 0 {
			limit = 50
		}
		items, err := cfg.Repo.ListHistory(ctx, input.ProjectID, input.Cursor, limit)
		if err != nil {
			return nil, handleError(err)
		}
		body := HistoryResponse{Items: items}
		if len(items) == limit {
			body.NextCursor = items[len(items)-1].ID
		}
		return &struct {
			Body HistoryResponse `json:"body"`
		}{Body: body}, nil
	})
}

func registerAnalytics(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "analytics",
		Method:      http.MethodGet,
		Path:        "/analytics",
		Summary:     "Pipeline analytics over a trailing window",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Window int `query:"window" doc:"Trailing window in days: 7, 30 or 90"`
	}) (*struct {
		Body engine.Analytics `json:"body"`
	}, error) {
		a, err := cfg.Engine.GetAnalytics(ctx, input.Window)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Analytics `json:"body"`
		}{Body: a}, nil
	})
}

func registerPipelineConfig(api huma.API, cfg Config) {
	e := cfg.Engine

	huma.Register(api, huma.Operation{
		OperationID: "get-config",
		Method:      http.MethodGet,
		Path:        "/config",
		Summary:     "Get pipeline configuration",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body *config.Pipeline `json:"body"`
	}, error) {
		pcfg, err := e.GetPipelineConfig(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body *config.Pipeline `json:"body"`
		}{Body: pcfg}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "patch-config",
		Method:      http.MethodPatch,
		Path:        "/config",
		Summary:     "Merge-patch pipeline configuration",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		RawBody []byte
	}) (*struct {
		Body *config.Pipeline `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		next, err := e.UpdatePipelineConfig(ctx, input.RawBody)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body *config.Pipeline `json:"body"`
		}{Body: next}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-config",
		Method:      http.MethodPut,
		Path:        "/config",
		Summary:     "Replace pipeline configuration",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body config.Pipeline `json:"body"`
	}) (*struct {
		Body *config.Pipeline `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		next, err := e.ReplacePipelineConfig(ctx, &input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body *config.Pipeline `json:"body"`
		}{Body: next}, nil
	})
}

func registerTriggers(api huma.API, cfg Config) {
	e := cfg.Engine
	r := cfg.Repo

	buildTrigger := func(id string, req TriggerRequest, createdAt, now time.Time) domain.Trigger {
		enabled := true
		if req.Enabled != nil {
			enabled = *req.Enabled
		}
		return domain.Trigger{
			ID:         id,
			Name:       req.Name,
			Enabled:    enabled,
			Type:       req.Type,
			Stage:      req.Stage,
			Days:       req.Days,
			ValueCents: req.ValueCents,
			Actions:    req.Actions,
			CreatedAt:  createdAt,
			UpdatedAt:  now,
		}
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-triggers",
		Method:      http.MethodGet,
		Path:        "/triggers",
		Summary:     "List automation triggers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Trigger `json:"body"`
	}, error) {
		items, err := r.FetchTriggers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Trigger `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-trigger",
		Method:        http.MethodPost,
		Path:          "/triggers",
		Summary:       "Create automation trigger",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body TriggerRequest `json:"body"`
	}) (*struct {
		Body domain.Trigger `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		pcfg, err := e.GetPipelineConfig(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		now := e.Now().UTC()
		t := buildTrigger(uuid.NewString(), input.Body, now, now)
		if err := engine.ValidateTrigger(pcfg, t); err != nil {
			return nil, handleError(err)
		}
		if err := r.InsertTrigger(ctx, t); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Trigger `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-trigger",
		Method:      http.MethodPut,
		Path:        "/triggers/{trigger_id}",
		Summary:     "Update automation trigger",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TriggerID string         `path:"trigger_id"`
		Body      TriggerRequest `json:"body"`
	}) (*struct {
		Body domain.Trigger `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		existing, err := r.GetTrigger(ctx, input.TriggerID)
		if err != nil {
			return nil, handleError(err)
		}
		pcfg, err := e.GetPipelineConfig(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		t := buildTrigger(existing.ID, input.Body, existing.CreatedAt, e.Now().UTC())
		if err := engine.ValidateTrigger(pcfg, t); err != nil {
			return nil, handleError(err)
		}
		if err := r.UpdateTrigger(ctx, t); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Trigger `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-trigger",
		Method:        http.MethodDelete,
		Path:          "/triggers/{trigger_id}",
		Summary:       "Delete automation trigger",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TriggerID string `path:"trigger_id"`
	}) (*struct{}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		if err := r.DeleteTrigger(ctx, input.TriggerID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSavedFilters(api huma.API, cfg Config) {
	r := cfg.Repo
	e := cfg.Engine

	huma.Register(api, huma.Operation{
		OperationID: "list-filters",
		Method:      http.MethodGet,
		Path:        "/filters",
		Summary:     "List saved filters visible to the caller",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.SavedFilter `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := r.ListSavedFilters(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.SavedFilter `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-filter",
		Method:        http.MethodPost,
		Path:          "/filters",
		Summary:       "Save a filter",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body SavedFilterRequest `json:"body"`
	}) (*struct {
		Body domain.SavedFilter `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if strings.TrimSpace(input.Body.Name) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		now := e.Now().UTC()
		f := domain.SavedFilter{
			ID:        uuid.NewString(),
			Name:      input.Body.Name,
			Filters:   input.Body.Filters,
			IsDefault: input.Body.IsDefault,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if !input.Body.Shared {
			f.OwnerID = &actorID
		}
		if err := r.InsertSavedFilter(ctx, f); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SavedFilter `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-filter",
		Method:      http.MethodPut,
		Path:        "/filters/{filter_id}",
		Summary:     "Update a saved filter",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FilterID string             `path:"filter_id"`
		Body     SavedFilterRequest `json:"body"`
	}) (*struct {
		Body domain.SavedFilter `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := r.GetSavedFilter(ctx, input.FilterID)
		if err != nil {
			return nil, handleError(err)
		}
		principal, _ := principalFromContext(ctx)
		if f.OwnerID != nil && *f.OwnerID != actorID && !principal.IsAdmin {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "not the filter owner", nil)
		}
		if strings.TrimSpace(input.Body.Name) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		f.Name = input.Body.Name
		f.Filters = input.Body.Filters
		f.IsDefault = input.Body.IsDefault
		f.UpdatedAt = e.Now().UTC()
		if err := r.UpdateSavedFilter(ctx, f); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SavedFilter `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-filter",
		Method:        http.MethodDelete,
		Path:          "/filters/{filter_id}",
		Summary:       "Delete a saved filter",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FilterID string `path:"filter_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := r.GetSavedFilter(ctx, input.FilterID)
		if err != nil {
			return nil, handleError(err)
		}
		principal, _ := principalFromContext(ctx)
		if f.OwnerID != nil && *f.OwnerID != actorID && !principal.IsAdmin {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "not the filter owner", nil)
		}
		if err := r.DeleteSavedFilter(ctx, input.FilterID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSweep(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "run-sweep",
		Method:      http.MethodPost,
		Path:        "/sweep",
		Summary:     "Evaluate time and value triggers over open projects",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SweepResponse `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		var intents []domain.ActionIntent
		var err error
		if cfg.Dispatcher != nil {
			// Dispatching through the sweep path keeps the seen-intent
			// bookkeeping, so repeated manual sweeps do not redeliver.
			intents, err = cfg.Dispatcher.Sweep(ctx)
		} else {
			intents, err = cfg.Engine.RunSweep(ctx)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SweepResponse `json:"body"`
		}{Body: SweepResponse{Intents: intents}}, nil
	})
}
