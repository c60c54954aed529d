// Package staleness derives evaluation staleness from the profile version
// stamp. Staleness is never stored; it is recomputed against the current
// profile version on every query.
package staleness

import (
	"time"

	"github.com/sells-group/contract-radar/internal/model"
)

// IsStale reports whether an evaluation was computed against an older profile
// version than the current one. Version-based staleness is the only signal
// that drives re-score selection.
func IsStale(eval *model.Evaluation, currentProfileVersion int64) bool {
	return eval.ProfileVersionAtEvaluation < currentProfileVersion
}

// Count tallies stale evaluations among all live evaluations for a company.
func Count(evals []model.Evaluation, currentProfileVersion int64) model.StaleCount {
	sc := model.StaleCount{
		TotalEvaluations:      len(evals),
		CurrentProfileVersion: currentProfileVersion,
	}
	for i := range evals {
		if IsStale(&evals[i], currentProfileVersion) {
			sc.StaleCount++
		}
	}
	return sc
}

// IsStaleByAge reports whether an evaluation's last update is older than the
// threshold. This is an advisory signal for UI banners only; it is
// independent of version staleness and must not feed re-score selection.
func IsStaleByAge(eval *model.Evaluation, thresholdDays int, now time.Time) bool {
	if thresholdDays <= 0 {
		return false
	}
	return now.Sub(eval.UpdatedAt) > time.Duration(thresholdDays)*24*time.Hour
}
