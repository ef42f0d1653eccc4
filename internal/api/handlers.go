package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/strideworks/coachguard/internal/models"
)

// resolveRequest is the body for accept/reject endpoints.
type resolveRequest struct {
	ActionID   string `json:"action_id"`
	ResolvedBy string `json:"resolved_by"`
}

func (s *Server) cycleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	subject, ok := subjectParam(w, r)
	if !ok {
		return
	}
	slog.Debug("Server.cycleHandler: running agent cycle", "subject", subject)

	result, err := s.orchestrator.RunCycle(r.Context(), subject)
	if err != nil {
		if errors.Is(err, models.ErrConsentWithdrawn) || errors.Is(err, models.ErrConsentNotGranted) {
			slog.Info("Server.cycleHandler: cycle blocked by consent", "subject", subject, "error", err)
			writeJSONResponse(w, http.StatusForbidden, models.Blocked(err.Error(), nil))
			return
		}
		slog.Error("Server.cycleHandler: cycle failed", "error", err, "subject", subject)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Agent cycle failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

func (s *Server) actionsHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	subject, ok := subjectParam(w, r)
	if !ok {
		return
	}

	var actions []models.AgentAction
	var err error
	if status := models.ActionStatus(r.URL.Query().Get("status")); status != "" {
		if !models.IsValidActionStatus(status) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid status filter"))
			return
		}
		// Explicit status filters bypass the expiry filter for audit views.
		actions, err = s.lifecycle.ListByStatus(subject, status)
	} else {
		actions, err = s.lifecycle.ListPending(subject)
	}
	if err != nil {
		slog.Error("Server.actionsHandler: list failed", "error", err, "subject", subject)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list actions"))
		return
	}
	if actions == nil {
		actions = []models.AgentAction{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(actions))
}

func (s *Server) acceptHandler(w http.ResponseWriter, r *http.Request) {
	s.resolveHandler(w, r, true)
}

func (s *Server) rejectHandler(w http.ResponseWriter, r *http.Request) {
	s.resolveHandler(w, r, false)
}

func (s *Server) resolveHandler(w http.ResponseWriter, r *http.Request, accept bool) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.resolveHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.ActionID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("action_id is required"))
		return
	}

	var action *models.AgentAction
	var err error
	if accept {
		action, err = s.lifecycle.Accept(req.ActionID, req.ResolvedBy)
	} else {
		action, err = s.lifecycle.Reject(req.ActionID, req.ResolvedBy)
	}
	if err != nil {
		switch {
		case errors.Is(err, models.ErrActionNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
		case errors.Is(err, models.ErrActionNotPending), errors.Is(err, models.ErrActionExpired):
			writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
		default:
			slog.Error("Server.resolveHandler: transition failed", "error", err, "actionID", req.ActionID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to resolve action"))
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(action))
}

func (s *Server) preferencesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		subject, ok := subjectParam(w, r)
		if !ok {
			return
		}
		isAICoached := true
		if v := r.URL.Query().Get("ai_coached"); v != "" {
			isAICoached = v == "true" || v == "1"
		}
		prefs, err := s.prefs.Resolve(subject, isAICoached)
		if err != nil {
			slog.Error("Server.preferencesHandler: resolve failed", "error", err, "subject", subject)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load preferences"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(prefs))
	case http.MethodPut:
		var prefs models.AgentPreferences
		if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := prefs.Validate(); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		prefs.UpdatedAt = time.Now()
		if err := s.store.SavePreferences(prefs); err != nil {
			slog.Error("Server.preferencesHandler: save failed", "error", err, "subject", prefs.SubjectID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save preferences"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Preferences saved", prefs))
	default:
		w.Header().Set("Allow", "GET, PUT")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) consentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		subject, ok := subjectParam(w, r)
		if !ok {
			return
		}
		consentRec, err := s.store.GetConsent(subject)
		if err != nil {
			slog.Error("Server.consentHandler: load failed", "error", err, "subject", subject)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load consent"))
			return
		}
		if consentRec == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("No consent record for subject"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(consentRec))
	case http.MethodPut:
		var consentRec models.AgentConsent
		if err := json.NewDecoder(r.Body).Decode(&consentRec); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if consentRec.SubjectID == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("subject_id is required"))
			return
		}
		consentRec.UpdatedAt = time.Now()
		if err := s.store.SaveConsent(consentRec); err != nil {
			slog.Error("Server.consentHandler: save failed", "error", err, "subject", consentRec.SubjectID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save consent"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Consent saved", consentRec))
	default:
		w.Header().Set("Allow", "GET, PUT")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) withdrawConsentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	subject, ok := subjectParam(w, r)
	if !ok {
		return
	}
	consentRec, err := s.store.GetConsent(subject)
	if err != nil {
		slog.Error("Server.withdrawConsentHandler: load failed", "error", err, "subject", subject)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load consent"))
		return
	}
	if consentRec == nil {
		consentRec = &models.AgentConsent{SubjectID: subject}
	}
	consentRec.IsWithdrawn = true
	consentRec.UpdatedAt = time.Now()
	if err := s.store.SaveConsent(*consentRec); err != nil {
		slog.Error("Server.withdrawConsentHandler: save failed", "error", err, "subject", subject)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to withdraw consent"))
		return
	}
	slog.Info("Server.withdrawConsentHandler: consent withdrawn", "subject", subject)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Consent withdrawn", consentRec))
}

func (s *Server) deleteDataHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete) {
		return
	}
	subject, ok := subjectParam(w, r)
	if !ok {
		return
	}
	requestedBy := r.URL.Query().Get("requested_by")
	if requestedBy == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("requested_by query parameter is required"))
		return
	}
	result, err := s.privacy.DeleteAgentData(r.Context(), subject, requestedBy)
	if err != nil {
		slog.Error("Server.deleteDataHandler: deletion failed", "error", err, "subject", subject)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete agent data"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Agent data deleted", result))
}

func (s *Server) anonymizeDataHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	subject, ok := subjectParam(w, r)
	if !ok {
		return
	}
	requestedBy := r.URL.Query().Get("requested_by")
	if requestedBy == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("requested_by query parameter is required"))
		return
	}
	result, err := s.privacy.AnonymizeAgentData(r.Context(), subject, requestedBy)
	if err != nil {
		slog.Error("Server.anonymizeDataHandler: anonymization failed", "error", err, "subject", subject)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to anonymize agent data"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Agent data anonymized", result))
}

func (s *Server) dataSummaryHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	subject, ok := subjectParam(w, r)
	if !ok {
		return
	}
	summary, err := s.privacy.GetDataSummary(r.Context(), subject)
	if err != nil {
		slog.Error("Server.dataSummaryHandler: summary failed", "error", err, "subject", subject)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to build data summary"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(summary))
}
