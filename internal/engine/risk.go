package engine

import (
	"math"
	"time"

	"stageline/internal/config"
	"stageline/internal/domain"
)

// ScoreRisk derives the urgency tier for a project from its due date and
// current stage. Resolved stages always score none so completed work is never
// flagged. Pure given a fixed now; tests inject the clock.
func ScoreRisk(cfg *config.Pipeline, dueDate *time.Time, stage string, now time.Time) domain.RiskLevel {
	if dueDate == nil {
		return domain.RiskNone
	}
	if cfg.IsResolved(stage) {
		return domain.RiskNone
	}
	diffDays := int(math.Ceil(dueDate.Sub(now).Hours() / 24))
	switch {
	case diffDays < 0:
		return domain.RiskCritical
	case diffDays <= 1:
		return domain.RiskHigh
	case diffDays <= 3:
		return domain.RiskMedium
	case diffDays <= 7:
		return domain.RiskLow
	default:
		return domain.RiskNone
	}
}
