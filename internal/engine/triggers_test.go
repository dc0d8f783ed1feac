package engine

import (
	"errors"
	"testing"
	"time"

	"stageline/internal/config"
	"stageline/internal/domain"
)

func notify() []domain.Action {
	return []domain.Action{{Kind: domain.ActionSendNotification, Template: "ping", Recipient: "ops"}}
}

func TestEvaluateStageChange(t *testing.T) {
	triggers := []domain.Trigger{
		{ID: "t1", Name: "on submit", Enabled: true, Type: domain.TriggerStageEnter, Stage: "submitted", Actions: notify()},
		{ID: "t2", Name: "left draft", Enabled: true, Type: domain.TriggerStageExit, Stage: "draft", Actions: notify()},
		{ID: "t3", Name: "disabled", Enabled: false, Type: domain.TriggerStageEnter, Stage: "submitted", Actions: notify()},
		{ID: "t4", Name: "elsewhere", Enabled: true, Type: domain.TriggerStageEnter, Stage: "approved", Actions: notify()},
	}
	ev := ChangeEvent{Project: domain.Project{ID: "p1"}, From: "draft", To: "submitted"}

	intents := EvaluateStageChange(triggers, ev)
	if len(intents) != 2 {
		t.Fatalf("got %d intents, want 2: %+v", len(intents), intents)
	}
	seen := map[string]bool{}
	for _, in := range intents {
		seen[in.TriggerID] = true
		if in.ProjectID != "p1" {
			t.Errorf("intent for wrong project: %s", in.ProjectID)
		}
	}
	if !seen["t1"] || !seen["t2"] {
		t.Fatalf("wrong triggers fired: %v", seen)
	}
}

func TestEvaluateSweep(t *testing.T) {
	cfg := config.Default()
	now := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	due := func(days int) *time.Time {
		d := now.AddDate(0, 0, days)
		return &d
	}
	triggers := []domain.Trigger{
		{ID: "over", Name: "overdue", Enabled: true, Type: domain.TriggerOverdue, Actions: notify()},
		{ID: "soon", Name: "due soon", Enabled: true, Type: domain.TriggerDueSoon, Days: 3, Actions: notify()},
		{ID: "big", Name: "big ticket", Enabled: true, Type: domain.TriggerValueThreshold, ValueCents: 100000, Actions: notify()},
		{ID: "off", Name: "disabled overdue", Enabled: false, Type: domain.TriggerOverdue, Actions: notify()},
	}
	projects := []domain.Project{
		{ID: "late", Status: "in_progress", DueDate: due(-2)},
		{ID: "closecall", Status: "submitted", DueDate: due(2)},
		{ID: "faraway", Status: "draft", DueDate: due(30)},
		{ID: "pricey", Status: "draft", ValueCents: 150000},
		{ID: "resolved-late", Status: "approved", DueDate: due(-10), ValueCents: 900000},
		{ID: "nodate", Status: "in_progress"},
	}

	intents := EvaluateSweep(cfg, triggers, projects, now)

	fired := map[string][]string{}
	for _, in := range intents {
		if in.TriggerID == "off" {
			t.Fatal("disabled trigger fired")
		}
		fired[in.TriggerID] = append(fired[in.TriggerID], in.ProjectID)
	}
	if got := fired["over"]; len(got) != 1 || got[0] != "late" {
		t.Errorf("overdue fired for %v, want [late]", got)
	}
	if got := fired["soon"]; len(got) != 1 || got[0] != "closecall" {
		t.Errorf("due_soon fired for %v, want [closecall]", got)
	}
	if got := fired["big"]; len(got) != 1 || got[0] != "pricey" {
		t.Errorf("value_threshold fired for %v, want [pricey]", got)
	}
}

func TestEvaluateSweepIdempotentKeys(t *testing.T) {
	cfg := config.Default()
	now := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	triggers := []domain.Trigger{
		{ID: "over", Name: "overdue", Enabled: true, Type: domain.TriggerOverdue, Actions: notify()},
	}
	projects := []domain.Project{{ID: "p1", Status: "draft", DueDate: &past}}

	first := EvaluateSweep(cfg, triggers, projects, now)
	second := EvaluateSweep(cfg, triggers, projects, now)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("got %d and %d intents, want 1 each", len(first), len(second))
	}
	if first[0].Key() != second[0].Key() {
		t.Fatal("repeated sweep produced different intent keys")
	}
	if got := DedupeIntents(append(first, second...)); len(got) != 1 {
		t.Fatalf("dedupe kept %d intents, want 1", len(got))
	}
}

func TestValidateTrigger(t *testing.T) {
	cfg := config.Default()
	valid := domain.Trigger{
		Name:    "on approve",
		Type:    domain.TriggerStageEnter,
		Stage:   "approved",
		Actions: []domain.Action{{Kind: domain.ActionAddTag, Tag: "approved"}},
	}
	if err := ValidateTrigger(cfg, valid); err != nil {
		t.Fatalf("valid trigger rejected: %v", err)
	}

	cases := []struct {
		name string
		mut  func(*domain.Trigger)
	}{
		{"missing name", func(tr *domain.Trigger) { tr.Name = "" }},
		{"unknown type", func(tr *domain.Trigger) { tr.Type = "on_comment" }},
		{"unknown stage", func(tr *domain.Trigger) { tr.Stage = "limbo" }},
		{"missing stage", func(tr *domain.Trigger) { tr.Stage = "" }},
		{"no actions", func(tr *domain.Trigger) { tr.Actions = nil }},
		{"unknown action kind", func(tr *domain.Trigger) { tr.Actions = []domain.Action{{Kind: "explode"}} }},
		{"add_tag without tag", func(tr *domain.Trigger) { tr.Actions = []domain.Action{{Kind: domain.ActionAddTag}} }},
		{"assign_to without user", func(tr *domain.Trigger) { tr.Actions = []domain.Action{{Kind: domain.ActionAssignTo}} }},
		{"change_status to unknown stage", func(tr *domain.Trigger) {
			tr.Actions = []domain.Action{{Kind: domain.ActionChangeStatus, Stage: "limbo"}}
		}},
		{"due_soon without days", func(tr *domain.Trigger) { tr.Type = domain.TriggerDueSoon; tr.Days = 0 }},
		{"value_threshold without value", func(tr *domain.Trigger) { tr.Type = domain.TriggerValueThreshold; tr.ValueCents = 0 }},
	}
	for _, c := range cases {
		tr := valid
		c.mut(&tr)
		err := ValidateTrigger(cfg, tr)
		if err == nil {
			t.Errorf("%s: accepted", c.name)
			continue
		}
		var verr ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: error is not a ValidationError: %v", c.name, err)
		}
	}
}
