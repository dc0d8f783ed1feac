package dispatch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"stageline/internal/config"
	"stageline/internal/db"
	"stageline/internal/dispatch"
	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/migrate"
	"stageline/internal/repo"
)

func newDispatcher(t *testing.T, url string) (*dispatch.Dispatcher, repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	ctx := context.Background()
	if err := r.SaveConfig(ctx, config.Default()); err != nil {
		t.Fatal(err)
	}
	eng := engine.New(r)
	eng.Now = func() time.Time { return time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC) }
	d := dispatch.New(eng, r, url)
	d.Now = eng.Now
	return d, r, ctx
}

func TestDispatchNotificationPostsWebhook(t *testing.T) {
	var got struct {
		ProjectID string `json:"project_id"`
		Kind      string `json:"kind"`
		Template  string `json:"template"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()
	d, _, ctx := newDispatcher(t, srv.URL)

	err := d.Dispatch(ctx, domain.ActionIntent{
		ProjectID: "p1",
		Action:    domain.Action{Kind: domain.ActionSendNotification, Template: "stage_changed"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.ProjectID != "p1" || got.Kind != "send_notification" || got.Template != "stage_changed" {
		t.Fatalf("payload: %+v", got)
	}
}

func TestDispatchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	d, _, ctx := newDispatcher(t, srv.URL)

	err := d.Dispatch(ctx, domain.ActionIntent{
		ProjectID: "p1",
		Action:    domain.Action{Kind: domain.ActionSlackNotify, Channel: "#ops"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls: got %d, want 3", calls.Load())
	}
}

func TestDispatchWritesTagsAndAssignments(t *testing.T) {
	d, r, ctx := newDispatcher(t, "")
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	err := r.CreateProject(ctx, domain.Project{
		ID: "p1", Title: "x", CreatorID: "c", Status: "draft",
		LastActivityAt: now, CreatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Dispatch(ctx, domain.ActionIntent{
		ProjectID: "p1", Action: domain.Action{Kind: domain.ActionAddTag, Tag: "urgent"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := d.Dispatch(ctx, domain.ActionIntent{
		ProjectID: "p1", Action: domain.Action{Kind: domain.ActionAssignTo, UserID: "reviewer-9"},
	}); err != nil {
		t.Fatal(err)
	}
	p, err := r.FetchProject(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Tags) != 1 || p.Tags[0] != "urgent" || p.AssigneeID != "reviewer-9" {
		t.Fatalf("writes lost: %+v", p)
	}
}

func TestSweepDeliversOnceAcrossRuns(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	d, r, ctx := newDispatcher(t, srv.URL)

	now := d.Now().UTC()
	past := now.AddDate(0, 0, -1)
	err := r.CreateProject(ctx, domain.Project{
		ID: "p1", Title: "late", CreatorID: "c", Status: "draft",
		DueDate: &past, LastActivityAt: now, CreatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	err = r.InsertTrigger(ctx, domain.Trigger{
		ID: "over", Name: "overdue", Enabled: true, Type: domain.TriggerOverdue,
		Actions:   []domain.Action{{Kind: domain.ActionSendNotification, Template: "overdue"}},
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}

	first, err := d.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("first sweep dispatched %d intents, want 1", len(first))
	}
	second, err := d.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Fatalf("second sweep dispatched %d intents, want 0", len(second))
	}
	if calls.Load() != 1 {
		t.Fatalf("deliveries: got %d, want 1", calls.Load())
	}
}
