package engine

import "stageline/internal/config"

// CanAdmit decides whether the target stage can accept one more project.
// currentCount is the stage population before the move; the caller counts,
// keeping this a pure decision function. A stage without a configured limit
// always admits.
func CanAdmit(cfg *config.Pipeline, stage string, currentCount int) bool {
	limit := cfg.WIPLimit(stage)
	if limit == nil {
		return true
	}
	return currentCount < *limit
}

// IsWIPViolation reports whether a stage already holds more items than its
// limit permits (e.g. the limit was lowered after the fact). Being exactly at
// capacity is not a violation. Violations are surfaced by analytics, never
// used to block further moves retroactively.
func IsWIPViolation(cfg *config.Pipeline, stage string, currentCount int) bool {
	limit := cfg.WIPLimit(stage)
	if limit == nil {
		return false
	}
	return currentCount > *limit
}
