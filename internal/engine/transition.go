package engine

import "stageline/internal/config"

// IsValidTransition decides whether a move between two stages is legal. It
// only reads the passed-in pipeline snapshot, so it is safe for unsynchronized
// concurrent use.
//
// Rules, in order: a no-op move is rejected rather than silently accepted;
// a locked source stage requires an administrator; otherwise the move must be
// a direct edge of the transition graph.
func IsValidTransition(cfg *config.Pipeline, from, to string, asAdmin bool) bool {
	if from == to {
		return false
	}
	if cfg.IsLocked(from) && !asAdmin {
		return false
	}
	return cfg.CanReach(from, to)
}
