package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/contract-radar/internal/model"
	"github.com/sells-group/contract-radar/internal/staleness"
)

// evaluationView is an evaluation annotated with derived staleness flags.
// Neither flag is stored; both are computed at read time.
type evaluationView struct {
	model.Evaluation
	IsStale    bool `json:"is_stale"`
	StaleByAge bool `json:"stale_by_age"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProfile(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePatchProfile(w http.ResponseWriter, r *http.Request) {
	var patch model.ProfilePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	p, bumped, err := s.tracker.ApplyUpdate(r.Context(), chi.URLParam(r, "companyID"), patch)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"profile":        p,
		"version_bumped": bumped,
	})
}

func (s *Server) handleStaleCount(w http.ResponseWriter, r *http.Request) {
	sc, err := s.coord.StaleCount(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleRescoreAll(w http.ResponseWriter, r *http.Request) {
	sum, err := s.coord.RescoreAllStale(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")

	p, err := s.store.GetProfile(r.Context(), companyID)
	if err != nil {
		writeError(w, err)
		return
	}

	evals, err := s.store.ListEvaluations(r.Context(), companyID)
	if err != nil {
		writeError(w, err)
		return
	}

	ageDays := s.cfg.StaleAgeDays
	if raw := r.URL.Query().Get("stale_age_days"); raw != "" {
		n, parseErr := strconv.Atoi(raw)
		if parseErr != nil || n < 0 {
			writeError(w, &model.ValidationError{Field: "stale_age_days", Reason: "must be a non-negative integer"})
			return
		}
		ageDays = n
	}

	now := time.Now().UTC()
	views := make([]evaluationView, len(evals))
	for i := range evals {
		views[i] = evaluationView{
			Evaluation: evals[i],
			IsStale:    staleness.IsStale(&evals[i], p.Version),
			StaleByAge: staleness.IsStaleByAge(&evals[i], ageDays, now),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"evaluations":             views,
		"current_profile_version": p.Version,
	})
}

func (s *Server) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.GetEvaluation(r.Context(), chi.URLParam(r, "evaluationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handlePatchUserFields(w http.ResponseWriter, r *http.Request) {
	var patch model.UserFieldsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if patch.IsZero() {
		writeError(w, &model.ValidationError{Reason: "empty patch"})
		return
	}
	if err := s.validate.Struct(patch); err != nil {
		writeError(w, &model.ValidationError{Reason: err.Error()})
		return
	}

	e, err := s.store.UpdateUserFields(r.Context(), chi.URLParam(r, "evaluationID"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	e, err := s.coord.RefreshOne(r.Context(), chi.URLParam(r, "evaluationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case model.IsNotFound(err):
		status = http.StatusNotFound
	case model.IsConflict(err):
		status = http.StatusConflict
	case model.IsValidation(err):
		status = http.StatusUnprocessableEntity
	case model.IsEvaluationFailed(err):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
