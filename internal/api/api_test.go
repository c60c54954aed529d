package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-radar/internal/model"
	"github.com/sells-group/contract-radar/internal/profile"
	"github.com/sells-group/contract-radar/internal/rescore"
	"github.com/sells-group/contract-radar/internal/store"
)

// scriptedEvaluator returns canned scores, failing for opportunity IDs in fail.
type scriptedEvaluator struct {
	fail map[string]bool
}

func (f *scriptedEvaluator) Evaluate(_ context.Context, opp *model.Opportunity, _ *model.CompanyProfile) (*model.ScoreResult, error) {
	if f.fail[opp.ID] {
		return nil, errors.New("model unavailable")
	}
	return &model.ScoreResult{
		FitScore:       75,
		WinProbability: 50,
		Recommendation: model.RecommendationBid,
		Reasoning:      "fresh scores",
		ModelVersion:   "claude-sonnet-4-5-20250929",
	}, nil
}

type testEnv struct {
	store   *store.SQLiteStore
	eval    *scriptedEvaluator
	server  *Server
	company string
	oppID   string
	evalID  string
}

// newTestEnv builds a server over a real SQLite store with one profile, one
// opportunity, and one stale evaluation (profile v2, evaluation stamped v1).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))

	p, err := st.CreateProfile(ctx, &model.CompanyProfile{
		Name:          "Acme Federal",
		NAICSCodes:    []string{"541511"},
		SetAsideCodes: []string{"SBA"},
		Capabilities:  "cloud migration",
	})
	require.NoError(t, err)

	caps := "cloud migration and devsecops"
	tracker := profile.NewTracker(st)
	p, bumped, err := tracker.ApplyUpdate(ctx, p.ID, model.ProfilePatch{Capabilities: &caps})
	require.NoError(t, err)
	require.True(t, bumped)
	require.Equal(t, int64(2), p.Version)

	opp, err := st.CreateOpportunity(ctx, &model.Opportunity{
		NoticeID:  "n-1",
		Title:     "Cloud Modernization BPA",
		NAICSCode: "541511",
	})
	require.NoError(t, err)

	ev, err := st.CreateEvaluation(ctx, &model.Evaluation{
		OpportunityID:              opp.ID,
		CompanyID:                  p.ID,
		FitScore:                   40,
		Recommendation:             model.RecommendationResearch,
		ProfileVersionAtEvaluation: 1,
	})
	require.NoError(t, err)

	eval := &scriptedEvaluator{fail: map[string]bool{}}
	coord := rescore.New(st, eval, rescore.Config{Workers: 2, EvaluatorTimeout: time.Second})
	srv := NewServer(st, tracker, coord, Config{Port: 0, StaleAgeDays: 30})

	return &testEnv{
		store:   st,
		eval:    eval,
		server:  srv,
		company: p.ID,
		oppID:   opp.ID,
		evalID:  ev.ID,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStaleCount(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/companies/"+env.company+"/stale-count", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	sc := decode[model.StaleCount](t, rec)
	assert.Equal(t, 1, sc.StaleCount)
	assert.Equal(t, 1, sc.TotalEvaluations)
	assert.Equal(t, int64(2), sc.CurrentProfileVersion)
}

func TestStaleCount_UnknownCompany(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/companies/nope/stale-count", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchProfile_BumpsVersion(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPatch, "/api/companies/"+env.company+"/profile", map[string]any{
		"naics_codes": []string{"541511", "541512"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[struct {
		Profile       model.CompanyProfile `json:"profile"`
		VersionBumped bool                 `json:"version_bumped"`
	}](t, rec)
	assert.True(t, resp.VersionBumped)
	assert.Equal(t, int64(3), resp.Profile.Version)
}

func TestPatchProfile_NonScoringChangeKeepsVersion(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPatch, "/api/companies/"+env.company+"/profile", map[string]any{
		"name": "Acme Federal LLC",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[struct {
		Profile       model.CompanyProfile `json:"profile"`
		VersionBumped bool                 `json:"version_bumped"`
	}](t, rec)
	assert.False(t, resp.VersionBumped)
	assert.Equal(t, int64(2), resp.Profile.Version)
}

func TestPatchProfile_EmptyPatch(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPatch, "/api/companies/"+env.company+"/profile", map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRescoreAll(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/companies/"+env.company+"/rescore-all", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	sum := decode[model.RescoreSummary](t, rec)
	assert.Equal(t, 1, sum.TotalStale)
	assert.Equal(t, 1, sum.RescoredCount)
	assert.Equal(t, 0, sum.ErrorCount)

	rec = env.do(t, http.MethodGet, "/api/companies/"+env.company+"/stale-count", nil)
	sc := decode[model.StaleCount](t, rec)
	assert.Equal(t, 0, sc.StaleCount)
}

func TestRescoreAll_ReportsFailures(t *testing.T) {
	env := newTestEnv(t)
	env.eval.fail[env.oppID] = true

	rec := env.do(t, http.MethodPost, "/api/companies/"+env.company+"/rescore-all", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	sum := decode[model.RescoreSummary](t, rec)
	assert.Equal(t, 1, sum.ErrorCount)
	assert.Equal(t, []string{env.evalID}, sum.FailedIDs)
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/evaluations/"+env.evalID+"/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ev := decode[model.Evaluation](t, rec)
	assert.Equal(t, 75, ev.FitScore)
	assert.Equal(t, int64(2), ev.ProfileVersionAtEvaluation)
}

func TestRefresh_NotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/evaluations/missing/refresh", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefresh_EvaluatorFailure(t *testing.T) {
	env := newTestEnv(t)
	env.eval.fail[env.oppID] = true

	rec := env.do(t, http.MethodPost, "/api/evaluations/"+env.evalID+"/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	// Stored evaluation is untouched.
	stored, err := env.store.GetEvaluation(context.Background(), env.evalID)
	require.NoError(t, err)
	assert.Equal(t, 40, stored.FitScore)
}

func TestPatchUserFields(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPatch, "/api/evaluations/"+env.evalID, map[string]any{
		"user_saved": "BIDDING",
		"user_notes": "call Friday",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	ev := decode[model.Evaluation](t, rec)
	assert.Equal(t, model.SavedStatusBidding, ev.UserSaved)
	assert.Equal(t, "call Friday", ev.UserNotes)
	assert.Equal(t, 40, ev.FitScore, "patching user fields must not touch scores")
}

func TestPatchUserFields_InvalidStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPatch, "/api/evaluations/"+env.evalID, map[string]any{
		"user_saved": "MAYBE",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPatchUserFields_EmptyPatch(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPatch, "/api/evaluations/"+env.evalID, map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListEvaluations_StaleFlags(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/companies/"+env.company+"/evaluations", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[struct {
		Evaluations []struct {
			ID         string `json:"id"`
			IsStale    bool   `json:"is_stale"`
			StaleByAge bool   `json:"stale_by_age"`
		} `json:"evaluations"`
		CurrentProfileVersion int64 `json:"current_profile_version"`
	}](t, rec)
	require.Len(t, resp.Evaluations, 1)
	assert.True(t, resp.Evaluations[0].IsStale)
	assert.False(t, resp.Evaluations[0].StaleByAge, "a fresh row is not age-stale")
	assert.Equal(t, int64(2), resp.CurrentProfileVersion)
}

func TestListEvaluations_BadAgeParam(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/companies/"+env.company+"/evaluations?stale_age_days=abc", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetEvaluation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/evaluations/"+env.evalID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ev := decode[model.Evaluation](t, rec)
	assert.Equal(t, env.evalID, ev.ID)
}

func TestGetProfile(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/companies/"+env.company+"/profile", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	p := decode[model.CompanyProfile](t, rec)
	assert.Equal(t, int64(2), p.Version)
}
