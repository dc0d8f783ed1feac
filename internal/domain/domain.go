package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned by storage implementations when a record is absent.
var ErrNotFound = errors.New("not found")

// ErrStageConflict is returned by storage implementations when a stage write's
// expected prior stage no longer matches the stored stage (compare-and-swap miss).
var ErrStageConflict = errors.New("stage conflict")

// Stage is one named step of the delivery pipeline. Stages are configuration:
// the catalog only changes through administrative config updates.
type Stage struct {
	ID            string `json:"id" yaml:"id"`
	Label         string `json:"label" yaml:"label"`
	Color         string `json:"color,omitempty" yaml:"color,omitempty"`
	WIPLimit      *int   `json:"wip_limit,omitempty" yaml:"wip_limit,omitempty"`
	AutoNotify    bool   `json:"auto_notify,omitempty" yaml:"auto_notify,omitempty"`
	DueOffsetDays *int   `json:"due_offset_days,omitempty" yaml:"due_offset_days,omitempty"`
}

// Project is a creator-submitted work item moving through the pipeline.
// Money is integer minor currency units, never floating point.
type Project struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	CreatorID      string     `json:"creator_id"`
	Status         string     `json:"status"`
	DueDate        *time.Time `json:"due_date,omitempty" format:"date-time"`
	ValueCents     int64      `json:"value_cents"`
	Tags           []string   `json:"tags,omitempty"`
	HasUnread      bool       `json:"has_unread"`
	FileCount      int        `json:"file_count"`
	AssigneeID     string     `json:"assignee_id,omitempty"`
	LastActivityAt time.Time  `json:"last_activity_at" format:"date-time"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty" format:"date-time"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt      time.Time  `json:"created_at" format:"date-time"`
}

// StageHistoryEntry is an immutable append-only record of an accepted transition.
type StageHistoryEntry struct {
	ID        int64     `json:"id"`
	ProjectID string    `json:"project_id"`
	FromStage string    `json:"from_stage"`
	ToStage   string    `json:"to_stage"`
	Actor     string    `json:"actor"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

// StageWrite describes a conditional stage update. FromStage is the expected
// prior stage; implementations must refuse the write with ErrStageConflict
// when the stored stage differs.
type StageWrite struct {
	ProjectID   string
	FromStage   string
	ToStage     string
	ActivityAt  time.Time
	ApprovedAt  *time.Time
	CompletedAt *time.Time
}

// RiskLevel is the urgency tier derived from due date and stage. It is never
// stored; it is recomputed from a project snapshot and an injected clock.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var allRiskLevels = []RiskLevel{RiskNone, RiskLow, RiskMedium, RiskHigh, RiskCritical}

// AllRiskLevels returns the five-level enumeration in ascending severity.
func AllRiskLevels() []RiskLevel {
	cp := make([]RiskLevel, len(allRiskLevels))
	copy(cp, allRiskLevels)
	return cp
}

// ParseRiskLevel converts a string into a known RiskLevel.
func ParseRiskLevel(value string) (RiskLevel, bool) {
	for _, lvl := range allRiskLevels {
		if string(lvl) == value {
			return lvl, true
		}
	}
	return "", false
}

// TriggerType classifies when an automation trigger is considered.
type TriggerType string

const (
	TriggerStageEnter     TriggerType = "stage_enter"
	TriggerStageExit      TriggerType = "stage_exit"
	TriggerOverdue        TriggerType = "overdue"
	TriggerDueSoon        TriggerType = "due_soon"
	TriggerValueThreshold TriggerType = "value_threshold"
)

// ActionKind discriminates the closed set of automation action variants.
type ActionKind string

const (
	ActionSendNotification ActionKind = "send_notification"
	ActionSlackNotify      ActionKind = "slack_notify"
	ActionAssignTo         ActionKind = "assign_to"
	ActionAddTag           ActionKind = "add_tag"
	ActionChangeStatus     ActionKind = "change_status"
)

// Action is a tagged variant: Kind selects which parameter fields are meaningful.
type Action struct {
	Kind      ActionKind `json:"kind" enum:"send_notification,slack_notify,assign_to,add_tag,change_status"`
	Template  string     `json:"template,omitempty"`
	Recipient string     `json:"recipient,omitempty"`
	Channel   string     `json:"channel,omitempty"`
	Message   string     `json:"message,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	Tag       string     `json:"tag,omitempty"`
	Stage     string     `json:"stage,omitempty"`
}

// Trigger is a configured automation rule evaluated read-only by the engine.
type Trigger struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Enabled    bool        `json:"enabled"`
	Type       TriggerType `json:"type" enum:"stage_enter,stage_exit,overdue,due_soon,value_threshold"`
	Stage      string      `json:"stage,omitempty"`
	Days       int         `json:"days,omitempty"`
	ValueCents int64       `json:"value_cents,omitempty"`
	Actions    []Action    `json:"actions"`
	CreatedAt  time.Time   `json:"created_at" format:"date-time"`
	UpdatedAt  time.Time   `json:"updated_at" format:"date-time"`
}

// ActionIntent is a request for an external collaborator to perform a side
// effect. Emitting an intent never executes it.
type ActionIntent struct {
	TriggerID   string `json:"trigger_id,omitempty"`
	TriggerName string `json:"trigger_name,omitempty"`
	ProjectID   string `json:"project_id"`
	Action      Action `json:"action"`
}

// Key identifies an intent for consumer-side deduplication; re-emitting the
// same intent during a repeated sweep yields the same key.
func (i ActionIntent) Key() string {
	a := i.Action
	return i.TriggerID + "|" + i.ProjectID + "|" + string(a.Kind) + "|" + a.Stage + "|" + a.Tag + "|" + a.UserID + "|" + a.Recipient + "|" + a.Channel
}

// FilterSet is the opaque predicate bag handed to the storage layer. The
// engine passes it through without interpreting individual predicates.
type FilterSet struct {
	Search        string      `json:"search,omitempty"`
	Stages        []string    `json:"stages,omitempty"`
	Creators      []string    `json:"creators,omitempty"`
	DueFrom       *time.Time  `json:"due_from,omitempty" format:"date-time"`
	DueTo         *time.Time  `json:"due_to,omitempty" format:"date-time"`
	RiskLevels    []RiskLevel `json:"risk_levels,omitempty"`
	MinValueCents *int64      `json:"min_value_cents,omitempty"`
	MaxValueCents *int64      `json:"max_value_cents,omitempty"`
	HasUnread     *bool       `json:"has_unread,omitempty"`
	HasFiles      *bool       `json:"has_files,omitempty"`
}

// SavedFilter is stored query configuration. A nil OwnerID means shared.
type SavedFilter struct {
	ID        string    `json:"id"`
	OwnerID   *string   `json:"owner_id,omitempty"`
	Name      string    `json:"name"`
	Filters   FilterSet `json:"filters"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
	UpdatedAt time.Time `json:"updated_at" format:"date-time"`
}

// APIKey authenticates a non-interactive caller. Admin keys act as
// administrators for locked-stage moves and config updates.
type APIKey struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	Name      string    `json:"name,omitempty"`
	KeyHash   string    `json:"key_hash"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}
