package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"stageline/internal/db"
	"stageline/internal/domain"
	"stageline/internal/migrate"
	"stageline/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}, context.Background()
}

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func seedProject(t *testing.T, r repo.Repo, ctx context.Context, p domain.Project) domain.Project {
	t.Helper()
	if p.Status == "" {
		p.Status = "draft"
	}
	if p.CreatorID == "" {
		p.CreatorID = "creator-1"
	}
	if p.LastActivityAt.IsZero() {
		p.LastActivityAt = baseTime
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = baseTime
	}
	if err := r.CreateProject(ctx, p); err != nil {
		t.Fatalf("seed %s: %v", p.ID, err)
	}
	return p
}

func TestProjectRoundTrip(t *testing.T) {
	r, ctx := newTestRepo(t)
	due := baseTime.AddDate(0, 0, 7)
	seedProject(t, r, ctx, domain.Project{
		ID: "p1", Title: "logo pack", CreatorID: "alice", Status: "in_progress",
		DueDate: &due, ValueCents: 250000, Tags: []string{"design", "rush"},
		HasUnread: true, FileCount: 3,
	})

	got, err := r.FetchProject(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "logo pack" || got.CreatorID != "alice" || got.ValueCents != 250000 {
		t.Fatalf("round trip lost fields: %+v", got)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Fatalf("due date: %v", got.DueDate)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "design" {
		t.Fatalf("tags: %v", got.Tags)
	}
	if !got.HasUnread || got.FileCount != 3 {
		t.Fatalf("flags lost: %+v", got)
	}

	if _, err := r.FetchProject(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing project: %v", err)
	}
}

func TestFetchProjectsSnapshotFilters(t *testing.T) {
	r, ctx := newTestRepo(t)
	near := baseTime.AddDate(0, 0, 2)
	far := baseTime.AddDate(0, 0, 40)
	seedProject(t, r, ctx, domain.Project{ID: "p1", Title: "logo refresh", CreatorID: "alice", Status: "draft", DueDate: &near, ValueCents: 10000, HasUnread: true})
	seedProject(t, r, ctx, domain.Project{ID: "p2", Title: "brand video", CreatorID: "bob", Status: "submitted", DueDate: &far, ValueCents: 90000, FileCount: 2})
	seedProject(t, r, ctx, domain.Project{ID: "p3", Title: "logo animation", CreatorID: "bob", Status: "in_progress", ValueCents: 40000})

	ids := func(f domain.FilterSet) []string {
		t.Helper()
		projects, err := r.FetchProjectsSnapshot(ctx, f)
		if err != nil {
			t.Fatal(err)
		}
		var out []string
		for _, p := range projects {
			out = append(out, p.ID)
		}
		return out
	}
	has := func(got []string, want ...string) bool {
		if len(got) != len(want) {
			return false
		}
		set := map[string]bool{}
		for _, id := range got {
			set[id] = true
		}
		for _, id := range want {
			if !set[id] {
				return false
			}
		}
		return true
	}

	if got := ids(domain.FilterSet{}); !has(got, "p1", "p2", "p3") {
		t.Fatalf("unfiltered: %v", got)
	}
	if got := ids(domain.FilterSet{Search: "logo"}); !has(got, "p1", "p3") {
		t.Fatalf("search: %v", got)
	}
	if got := ids(domain.FilterSet{Stages: []string{"draft", "submitted"}}); !has(got, "p1", "p2") {
		t.Fatalf("stages: %v", got)
	}
	if got := ids(domain.FilterSet{Creators: []string{"bob"}}); !has(got, "p2", "p3") {
		t.Fatalf("creators: %v", got)
	}
	to := baseTime.AddDate(0, 0, 10)
	if got := ids(domain.FilterSet{DueTo: &to}); !has(got, "p1") {
		t.Fatalf("due range: %v", got)
	}
	min := int64(30000)
	if got := ids(domain.FilterSet{MinValueCents: &min}); !has(got, "p2", "p3") {
		t.Fatalf("min value: %v", got)
	}
	unread := true
	if got := ids(domain.FilterSet{HasUnread: &unread}); !has(got, "p1") {
		t.Fatalf("unread: %v", got)
	}
	files := true
	if got := ids(domain.FilterSet{HasFiles: &files}); !has(got, "p2") {
		t.Fatalf("files: %v", got)
	}
}

func TestWriteProjectStageCAS(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedProject(t, r, ctx, domain.Project{ID: "p1", Title: "x", Status: "draft"})

	w := domain.StageWrite{ProjectID: "p1", FromStage: "draft", ToStage: "in_progress", ActivityAt: baseTime}
	if err := r.WriteProjectStage(ctx, w); err != nil {
		t.Fatalf("first write: %v", err)
	}
	// Same expected prior stage again: the row moved on, so this must miss.
	if err := r.WriteProjectStage(ctx, w); !errors.Is(err, domain.ErrStageConflict) {
		t.Fatalf("want ErrStageConflict, got %v", err)
	}
	w.ProjectID = "ghost"
	if err := r.WriteProjectStage(ctx, w); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestAddTagIsIdempotent(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedProject(t, r, ctx, domain.Project{ID: "p1", Title: "x", Tags: []string{"a"}})

	if err := r.AddTag(ctx, "p1", "b", baseTime); err != nil {
		t.Fatal(err)
	}
	if err := r.AddTag(ctx, "p1", "b", baseTime); err != nil {
		t.Fatal(err)
	}
	got, err := r.FetchProject(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Tags) != 2 || got.Tags[1] != "b" {
		t.Fatalf("tags: %v", got.Tags)
	}
}

func TestListHistoryCursor(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedProject(t, r, ctx, domain.Project{ID: "p1", Title: "x"})
	stages := []string{"in_progress", "submitted", "approved"}
	prev := "draft"
	for i, s := range stages {
		err := r.AppendHistory(ctx, domain.StageHistoryEntry{
			ProjectID: "p1", FromStage: prev, ToStage: s, Actor: "t",
			CreatedAt: baseTime.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
		prev = s
	}

	first, err := r.ListHistory(ctx, "p1", 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 || first[0].ToStage != "approved" {
		t.Fatalf("first page: %+v", first)
	}
	rest, err := r.ListHistory(ctx, "p1", first[1].ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 || rest[0].ToStage != "in_progress" {
		t.Fatalf("second page: %+v", rest)
	}
}

func TestSavedFilterVisibility(t *testing.T) {
	r, ctx := newTestRepo(t)
	alice := "alice"
	filters := []domain.SavedFilter{
		{ID: "f1", Name: "shared", Filters: domain.FilterSet{Stages: []string{"draft"}}},
		{ID: "f2", OwnerID: &alice, Name: "mine", Filters: domain.FilterSet{Search: "logo"}, IsDefault: true},
	}
	for _, f := range filters {
		f.CreatedAt, f.UpdatedAt = baseTime, baseTime
		if err := r.InsertSavedFilter(ctx, f); err != nil {
			t.Fatal(err)
		}
	}

	mine, err := r.ListSavedFilters(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 {
		t.Fatalf("alice sees %d filters, want 2", len(mine))
	}
	others, err := r.ListSavedFilters(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(others) != 1 || others[0].ID != "f1" {
		t.Fatalf("bob sees %+v", others)
	}
	got, err := r.GetSavedFilter(ctx, "f2")
	if err != nil {
		t.Fatal(err)
	}
	if got.Filters.Search != "logo" || !got.IsDefault || got.OwnerID == nil {
		t.Fatalf("filter payload: %+v", got)
	}
}

func TestSavedFilterSingleDefaultPerOwner(t *testing.T) {
	r, ctx := newTestRepo(t)
	alice := "alice"
	f1 := domain.SavedFilter{
		ID: "f1", OwnerID: &alice, Name: "urgent", IsDefault: true,
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}
	f2 := domain.SavedFilter{
		ID: "f2", OwnerID: &alice, Name: "all", IsDefault: true,
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}
	if err := r.InsertSavedFilter(ctx, f1); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertSavedFilter(ctx, f2); err != nil {
		t.Fatal(err)
	}

	got, err := r.GetSavedFilter(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if got.IsDefault {
		t.Fatal("f1 should lose default when f2 becomes default")
	}
	got, err = r.GetSavedFilter(ctx, "f2")
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsDefault {
		t.Fatal("f2 should be the default")
	}
}

func TestAPIKeyLookup(t *testing.T) {
	r, ctx := newTestRepo(t)
	hash := repo.HashAPIKey("sl_live_secret")
	err := r.InsertAPIKey(ctx, domain.APIKey{
		ID: "k1", ActorID: "ops", Name: "ci", KeyHash: hash, IsAdmin: true, CreatedAt: baseTime,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(" sl_live_secret "))
	if err != nil {
		t.Fatalf("hash lookup: %v", err)
	}
	if got.ID != "k1" || !got.IsAdmin {
		t.Fatalf("key: %+v", got)
	}
	if _, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("wrong")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("wrong key: %v", err)
	}
}

func TestIntentSeen(t *testing.T) {
	r, ctx := newTestRepo(t)
	seen, err := r.IntentSeen(ctx, "k")
	if err != nil || seen {
		t.Fatalf("fresh key: seen=%v err=%v", seen, err)
	}
	if err := r.MarkIntentSeen(ctx, "k", baseTime); err != nil {
		t.Fatal(err)
	}
	if err := r.MarkIntentSeen(ctx, "k", baseTime); err != nil {
		t.Fatalf("re-mark: %v", err)
	}
	if seen, _ = r.IntentSeen(ctx, "k"); !seen {
		t.Fatal("marked key not seen")
	}
}
