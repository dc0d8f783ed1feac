package engine

import (
	"testing"

	"stageline/internal/config"
)

func TestIsValidTransitionGraph(t *testing.T) {
	cfg := config.Default()
	cases := []struct {
		from, to string
		admin    bool
		want     bool
	}{
		{"draft", "in_progress", false, true},
		{"draft", "submitted", false, true},
		{"in_progress", "submitted", false, true},
		{"in_progress", "draft", false, true},
		{"submitted", "approved", false, true},
		{"submitted", "revision_requested", false, true},
		{"revision_requested", "approved", false, true},
		{"approved", "payout_approved", false, true},
		{"payout_approved", "paid", false, true},

		{"draft", "approved", false, false},
		{"in_progress", "payout_approved", false, false},
		{"submitted", "draft", false, false},
		{"approved", "submitted", false, false},
	}
	for _, c := range cases {
		if got := IsValidTransition(cfg, c.from, c.to, c.admin); got != c.want {
			t.Errorf("IsValidTransition(%s -> %s, admin=%v) = %v, want %v", c.from, c.to, c.admin, got, c.want)
		}
	}
}

func TestIsValidTransitionSelfMove(t *testing.T) {
	cfg := config.Default()
	for _, s := range cfg.Stages {
		if IsValidTransition(cfg, s.ID, s.ID, false) {
			t.Errorf("self move allowed for %s", s.ID)
		}
		if IsValidTransition(cfg, s.ID, s.ID, true) {
			t.Errorf("self move allowed for %s as admin", s.ID)
		}
	}
}

func TestIsValidTransitionLockedStages(t *testing.T) {
	cfg := config.Default()

	if IsValidTransition(cfg, "withdrawal_requested", "paid", false) {
		t.Fatal("non-admin moved out of withdrawal_requested")
	}
	if !IsValidTransition(cfg, "withdrawal_requested", "paid", true) {
		t.Fatal("admin could not move out of withdrawal_requested")
	}
	// Locked is not a bypass: the edge must still exist.
	if IsValidTransition(cfg, "withdrawal_requested", "draft", true) {
		t.Fatal("admin bypassed the transition graph")
	}
	// Terminal stage has no outgoing edges even for admins.
	if IsValidTransition(cfg, "paid", "draft", true) {
		t.Fatal("moved out of terminal stage")
	}
}
