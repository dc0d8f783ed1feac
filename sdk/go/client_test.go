package stagelinesdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBulkMoveDecodesPartialFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/projects/bulk/move" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"updated_count": 1,
			"updated": [{"id": "p1", "stage": "negotiation"}],
			"errors": [{"project_id": "missing-id", "error": "project not found"}]
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.BulkMove(context.Background(), []string{"p1", "missing-id"}, "negotiation", "")
	if err != nil {
		t.Fatalf("bulk move: %v", err)
	}
	if res.UpdatedCount != 1 || len(res.Updated) != 1 {
		t.Fatalf("unexpected updated set: %+v", res)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected one error, got %+v", res.Errors)
	}
	if res.Errors[0].ProjectID != "missing-id" {
		t.Errorf("project id = %q", res.Errors[0].ProjectID)
	}
	if res.Errors[0].Message != "project not found" {
		t.Errorf("error message = %q, want %q", res.Errors[0].Message, "project not found")
	}
}
