package engine

import (
	"fmt"
	"time"

	"stageline/internal/config"
	"stageline/internal/domain"
)

// ChangeEvent describes one accepted stage transition presented to the
// trigger evaluator.
type ChangeEvent struct {
	Project domain.Project
	From    string
	To      string
}

// EvaluateStageChange returns the intents produced by stage_enter and
// stage_exit triggers matching the event. Triggers are read-only here;
// disabled triggers never match.
func EvaluateStageChange(triggers []domain.Trigger, ev ChangeEvent) []domain.ActionIntent {
	var intents []domain.ActionIntent
	for _, t := range triggers {
		if !t.Enabled {
			continue
		}
		switch t.Type {
		case domain.TriggerStageEnter:
			if t.Stage != ev.To {
				continue
			}
		case domain.TriggerStageExit:
			if t.Stage != ev.From {
				continue
			}
		default:
			continue
		}
		intents = append(intents, expand(t, ev.Project.ID)...)
	}
	return intents
}

// EvaluateSweep evaluates time- and value-based triggers (overdue, due_soon,
// value_threshold) against every open project. Open means the project's stage
// is not in the resolved set. Sweeps are idempotent per intent key: running
// twice without state changes produces the same intents again, and
// deduplication is the consumer's concern.
func EvaluateSweep(cfg *config.Pipeline, triggers []domain.Trigger, projects []domain.Project, now time.Time) []domain.ActionIntent {
	var intents []domain.ActionIntent
	for _, p := range projects {
		if cfg.IsResolved(p.Status) {
			continue
		}
		for _, t := range triggers {
			if !t.Enabled || !sweepMatch(t, p, now) {
				continue
			}
			intents = append(intents, expand(t, p.ID)...)
		}
	}
	return intents
}

func sweepMatch(t domain.Trigger, p domain.Project, now time.Time) bool {
	switch t.Type {
	case domain.TriggerOverdue:
		return p.DueDate != nil && p.DueDate.Before(now)
	case domain.TriggerDueSoon:
		if p.DueDate == nil || t.Days <= 0 {
			return false
		}
		horizon := now.AddDate(0, 0, t.Days)
		return !p.DueDate.Before(now) && !p.DueDate.After(horizon)
	case domain.TriggerValueThreshold:
		return t.ValueCents > 0 && p.ValueCents >= t.ValueCents
	default:
		return false
	}
}

func expand(t domain.Trigger, projectID string) []domain.ActionIntent {
	intents := make([]domain.ActionIntent, 0, len(t.Actions))
	for _, a := range t.Actions {
		intents = append(intents, domain.ActionIntent{
			TriggerID:   t.ID,
			TriggerName: t.Name,
			ProjectID:   projectID,
			Action:      a,
		})
	}
	return intents
}

// ValidateTrigger checks a trigger definition against the active pipeline
// catalog before it is stored.
func ValidateTrigger(cfg *config.Pipeline, t domain.Trigger) error {
	if t.Name == "" {
		return ValidationError{Msg: "trigger name is required"}
	}
	switch t.Type {
	case domain.TriggerStageEnter, domain.TriggerStageExit:
		if t.Stage == "" {
			return ValidationError{Msg: fmt.Sprintf("trigger %q: stage is required for type %s", t.Name, t.Type)}
		}
		if !cfg.HasStage(t.Stage) {
			return ValidationError{Msg: fmt.Sprintf("trigger %q: unknown stage %q", t.Name, t.Stage)}
		}
	case domain.TriggerOverdue:
	case domain.TriggerDueSoon:
		if t.Days <= 0 {
			return ValidationError{Msg: fmt.Sprintf("trigger %q: days must be positive for type due_soon", t.Name)}
		}
	case domain.TriggerValueThreshold:
		if t.ValueCents <= 0 {
			return ValidationError{Msg: fmt.Sprintf("trigger %q: value_cents must be positive for type value_threshold", t.Name)}
		}
	default:
		return ValidationError{Msg: fmt.Sprintf("trigger %q: unknown type %q", t.Name, t.Type)}
	}
	if len(t.Actions) == 0 {
		return ValidationError{Msg: fmt.Sprintf("trigger %q: at least one action is required", t.Name)}
	}
	for _, a := range t.Actions {
		if err := validateAction(cfg, t.Name, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAction(cfg *config.Pipeline, triggerName string, a domain.Action) error {
	switch a.Kind {
	case domain.ActionSendNotification, domain.ActionSlackNotify:
	case domain.ActionAssignTo:
		if a.UserID == "" {
			return ValidationError{Msg: fmt.Sprintf("trigger %q: assign_to action requires user_id", triggerName)}
		}
	case domain.ActionAddTag:
		if a.Tag == "" {
			return ValidationError{Msg: fmt.Sprintf("trigger %q: add_tag action requires tag", triggerName)}
		}
	case domain.ActionChangeStatus:
		if a.Stage == "" {
			return ValidationError{Msg: fmt.Sprintf("trigger %q: change_status action requires stage", triggerName)}
		}
		if !cfg.HasStage(a.Stage) {
			return ValidationError{Msg: fmt.Sprintf("trigger %q: change_status targets unknown stage %q", triggerName, a.Stage)}
		}
	default:
		return ValidationError{Msg: fmt.Sprintf("trigger %q: unknown action kind %q", triggerName, a.Kind)}
	}
	return nil
}
