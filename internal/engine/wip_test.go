package engine

import (
	"testing"

	"stageline/internal/config"
)

func TestCanAdmit(t *testing.T) {
	cfg := config.Default()

	// revision_requested carries a limit of 5 in the default catalog.
	for count := 0; count < 5; count++ {
		if !CanAdmit(cfg, "revision_requested", count) {
			t.Errorf("count %d under limit refused", count)
		}
	}
	if CanAdmit(cfg, "revision_requested", 5) {
		t.Error("admission at capacity should be refused")
	}
	if CanAdmit(cfg, "revision_requested", 6) {
		t.Error("admission over capacity should be refused")
	}

	// Stages without a limit admit any count.
	for _, count := range []int{0, 1, 100, 100000} {
		if !CanAdmit(cfg, "in_progress", count) {
			t.Errorf("unlimited stage refused at count %d", count)
		}
	}
}

func TestIsWIPViolation(t *testing.T) {
	cfg := config.Default()

	if IsWIPViolation(cfg, "revision_requested", 4) {
		t.Error("under limit flagged as violation")
	}
	// Capacity equals limit is full, not violating.
	if IsWIPViolation(cfg, "revision_requested", 5) {
		t.Error("at capacity flagged as violation")
	}
	if !IsWIPViolation(cfg, "revision_requested", 6) {
		t.Error("over limit not flagged")
	}
	if IsWIPViolation(cfg, "in_progress", 1000) {
		t.Error("unlimited stage flagged")
	}
}
