package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Recommendation is the evaluator's bid/no-bid call.
type Recommendation string

const (
	RecommendationBid      Recommendation = "BID"
	RecommendationNoBid    Recommendation = "NO_BID"
	RecommendationResearch Recommendation = "RESEARCH"
)

// Valid reports whether r is a known recommendation.
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendationBid, RecommendationNoBid, RecommendationResearch:
		return true
	}
	return false
}

// SavedStatus is the user's disposition for an evaluation. Empty means unset.
type SavedStatus string

const (
	SavedStatusNone     SavedStatus = ""
	SavedStatusWatching SavedStatus = "WATCHING"
	SavedStatusBidding  SavedStatus = "BIDDING"
	SavedStatusPassed   SavedStatus = "PASSED"
	SavedStatusWon      SavedStatus = "WON"
	SavedStatusLost     SavedStatus = "LOST"
)

// Valid reports whether s is a known saved status (empty allowed).
func (s SavedStatus) Valid() bool {
	switch s {
	case SavedStatusNone, SavedStatusWatching, SavedStatusBidding,
		SavedStatusPassed, SavedStatusWon, SavedStatusLost:
		return true
	}
	return false
}

// Evaluation is the persisted result of scoring one (opportunity, company)
// pair. At most one live evaluation exists per pair. Scored fields are only
// replaced by a re-score; user-owned fields (UserSaved, UserNotes) are only
// touched by the user.
type Evaluation struct {
	ID            string `json:"id"`
	OpportunityID string `json:"opportunity_id"`
	CompanyID     string `json:"company_id"`

	// Scored fields, replaced wholesale on re-score.
	FitScore           int            `json:"fit_score"`
	WinProbability     int            `json:"win_probability"`
	Recommendation     Recommendation `json:"recommendation"`
	Strengths          []string       `json:"strengths"`
	Weaknesses         []string       `json:"weaknesses"`
	Reasoning          string         `json:"reasoning"`
	RiskFactors        []string       `json:"risk_factors"`
	NAICSMatch         int            `json:"naics_match"`
	SetAsideMatch      int            `json:"set_aside_match"`
	GeographicMatch    int            `json:"geographic_match"`
	ContractValueMatch int            `json:"contract_value_match"`
	ModelVersion       string         `json:"model_version"`

	// ProfileVersionAtEvaluation is the company profile version the scores
	// were computed against. Staleness is derived from it, never stored.
	ProfileVersionAtEvaluation int64 `json:"profile_version_at_evaluation"`

	// User-owned fields. Re-scoring must never overwrite these.
	UserSaved SavedStatus `json:"user_saved,omitempty"`
	UserNotes string      `json:"user_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScoreResult is the evaluator's output for one (opportunity, company) pair.
// All numeric scores are on a 0-100 scale.
type ScoreResult struct {
	FitScore           int            `json:"fit_score"`
	WinProbability     int            `json:"win_probability"`
	Recommendation     Recommendation `json:"recommendation"`
	Strengths          []string       `json:"strengths"`
	Weaknesses         []string       `json:"weaknesses"`
	Reasoning          string         `json:"reasoning"`
	RiskFactors        []string       `json:"risk_factors"`
	NAICSMatch         int            `json:"naics_match"`
	SetAsideMatch      int            `json:"set_aside_match"`
	GeographicMatch    int            `json:"geographic_match"`
	ContractValueMatch int            `json:"contract_value_match"`
	ModelVersion       string         `json:"model_version"`
}

// Validate checks score ranges and the recommendation enum. A result that
// fails validation is treated as a total evaluator failure; partial scores
// are never accepted.
func (r *ScoreResult) Validate() error {
	ranges := map[string]int{
		"fit_score":            r.FitScore,
		"win_probability":      r.WinProbability,
		"naics_match":          r.NAICSMatch,
		"set_aside_match":      r.SetAsideMatch,
		"geographic_match":     r.GeographicMatch,
		"contract_value_match": r.ContractValueMatch,
	}
	for name, v := range ranges {
		if v < 0 || v > 100 {
			return eris.Errorf("score %s out of range: %d", name, v)
		}
	}
	if !r.Recommendation.Valid() {
		return eris.Errorf("unknown recommendation %q", r.Recommendation)
	}
	return nil
}

// ApplyScores merges a fresh evaluator result into the evaluation: scored
// fields are replaced, the profile version stamp is updated, and user-owned
// fields are left exactly as they were.
func (e *Evaluation) ApplyScores(res *ScoreResult, profileVersion int64, now time.Time) {
	e.FitScore = res.FitScore
	e.WinProbability = res.WinProbability
	e.Recommendation = res.Recommendation
	e.Strengths = res.Strengths
	e.Weaknesses = res.Weaknesses
	e.Reasoning = res.Reasoning
	e.RiskFactors = res.RiskFactors
	e.NAICSMatch = res.NAICSMatch
	e.SetAsideMatch = res.SetAsideMatch
	e.GeographicMatch = res.GeographicMatch
	e.ContractValueMatch = res.ContractValueMatch
	e.ModelVersion = res.ModelVersion
	e.ProfileVersionAtEvaluation = profileVersion
	e.UpdatedAt = now
}

// UserFieldsPatch is a partial update to the user-owned evaluation fields.
// Nil fields are untouched; pointer-to-empty clears.
type UserFieldsPatch struct {
	UserSaved *string `json:"user_saved,omitempty" validate:"omitempty,oneof=WATCHING BIDDING PASSED WON LOST"`
	UserNotes *string `json:"user_notes,omitempty" validate:"omitempty,max=10000"`
}

// IsZero reports whether the patch touches nothing.
func (p UserFieldsPatch) IsZero() bool {
	return p.UserSaved == nil && p.UserNotes == nil
}

// StaleCount summarizes staleness for one company's evaluations.
type StaleCount struct {
	StaleCount            int   `json:"stale_count"`
	TotalEvaluations      int   `json:"total_evaluations"`
	CurrentProfileVersion int64 `json:"current_profile_version"`
}

// RescoreSummary is the aggregate outcome of a bulk re-score run. A failed
// item keeps its pre-run state and remains stale; FailedIDs supports retry.
type RescoreSummary struct {
	TotalStale    int      `json:"total_stale"`
	RescoredCount int      `json:"rescored_count"`
	ErrorCount    int      `json:"error_count"`
	FailedIDs     []string `json:"failed_ids,omitempty"`
}
