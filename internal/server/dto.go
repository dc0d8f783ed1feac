package server

import (
	"time"

	"stageline/internal/domain"
	"stageline/internal/engine"
)

type CreateProjectRequest struct {
	ID         string     `json:"id,omitempty"`
	Title      string     `json:"title"`
	CreatorID  string     `json:"creator_id"`
	DueDate    *time.Time `json:"due_date,omitempty" format:"date-time"`
	ValueCents int64      `json:"value_cents,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
}

type ProjectResponse struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	CreatorID      string           `json:"creator_id"`
	Stage          string           `json:"stage"`
	Risk           domain.RiskLevel `json:"risk,omitempty"`
	DueDate        *time.Time       `json:"due_date,omitempty" format:"date-time"`
	ValueCents     int64            `json:"value_cents"`
	Tags           []string         `json:"tags,omitempty"`
	HasUnread      bool             `json:"has_unread"`
	FileCount      int              `json:"file_count"`
	AssigneeID     string           `json:"assignee_id,omitempty"`
	LastActivityAt time.Time        `json:"last_activity_at" format:"date-time"`
	ApprovedAt     *time.Time       `json:"approved_at,omitempty" format:"date-time"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt      time.Time        `json:"created_at" format:"date-time"`
}

func projectResponse(p domain.Project, risk domain.RiskLevel) ProjectResponse {
	return ProjectResponse{
		ID:             p.ID,
		Title:          p.Title,
		CreatorID:      p.CreatorID,
		Stage:          p.Status,
		Risk:           risk,
		DueDate:        p.DueDate,
		ValueCents:     p.ValueCents,
		Tags:           p.Tags,
		HasUnread:      p.HasUnread,
		FileCount:      p.FileCount,
		AssigneeID:     p.AssigneeID,
		LastActivityAt: p.LastActivityAt,
		ApprovedAt:     p.ApprovedAt,
		CompletedAt:    p.CompletedAt,
		CreatedAt:      p.CreatedAt,
	}
}

func mapProjects(items []engine.ProjectWithRisk) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(items))
	for _, it := range items {
		out = append(out, projectResponse(it.Project, it.Risk))
	}
	return out
}

type MoveRequest struct {
	Stage string `json:"stage"`
	Note  string `json:"note,omitempty"`
}

// DueDateRequest sets or clears the due date; null clears it.
type DueDateRequest struct {
	DueDate *time.Time `json:"due_date"`
}

type BulkMoveRequest struct {
	ProjectIDs []string `json:"project_ids"`
	Stage      string   `json:"stage"`
	Note       string   `json:"note,omitempty"`
}

type BulkMoveResponse struct {
	UpdatedCount int                `json:"updated_count"`
	Updated      []ProjectResponse  `json:"updated,omitempty"`
	Errors       []engine.BulkError `json:"errors,omitempty"`
}

type HistoryResponse struct {
	Items      []domain.StageHistoryEntry `json:"items"`
	NextCursor int64                      `json:"next_cursor,omitempty"`
}

type TriggerRequest struct {
	Name       string             `json:"name"`
	Enabled    *bool              `json:"enabled,omitempty"`
	Type       domain.TriggerType `json:"type"`
	Stage      string             `json:"stage,omitempty"`
	Days       int                `json:"days,omitempty"`
	ValueCents int64              `json:"value_cents,omitempty"`
	Actions    []domain.Action    `json:"actions"`
}

type SavedFilterRequest struct {
	Name      string           `json:"name"`
	Shared    bool             `json:"shared,omitempty"`
	Filters   domain.FilterSet `json:"filters"`
	IsDefault bool             `json:"is_default,omitempty"`
}

type SweepResponse struct {
	Intents []domain.ActionIntent `json:"intents"`
}
