package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/strideworks/coachguard/internal/agent"
	"github.com/strideworks/coachguard/internal/lifecycle"
	"github.com/strideworks/coachguard/internal/models"
	"github.com/strideworks/coachguard/internal/perception"
	"github.com/strideworks/coachguard/internal/privacy"
	"github.com/strideworks/coachguard/internal/store"
)

// fixedDecisions always proposes the same candidates.
type fixedDecisions struct {
	candidates []models.ProposedAction
}

func (f *fixedDecisions) Propose(ctx context.Context, perception models.PerceptionSnapshot) ([]models.ProposedAction, error) {
	return f.candidates, nil
}

type testServer struct {
	server *Server
	store  *store.InMemoryStore
	lm     *lifecycle.Manager
}

func newTestServer(t *testing.T, candidates ...models.ProposedAction) *testServer {
	t.Helper()
	st := store.NewInMemoryStore()
	locks := store.NewSubjectLocks()
	lm := lifecycle.NewManager(st)
	perc := &perception.StaticProvider{Snapshot: models.PerceptionSnapshot{
		TrainingLoad: models.TrainingLoad{ACWR: 1.0},
	}}
	dir := agent.SubjectDirectoryFunc(func(ctx context.Context, subjectID string) (bool, error) {
		return true, nil
	})
	orch := agent.NewOrchestrator(st, locks, perc, &fixedDecisions{candidates: candidates}, dir, lm)
	priv := privacy.NewService(st, locks)
	return &testServer{server: NewServer(st, orch, lm, priv), store: st, lm: lm}
}

func (ts *testServer) grantConsent(t *testing.T, subjectID string, categories ...models.ConsentCategory) {
	t.Helper()
	if err := ts.store.SaveConsent(models.AgentConsent{SubjectID: subjectID, Granted: categories, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("failed to seed consent: %v", err)
	}
}

func (ts *testServer) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewBuffer(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func checkIn() models.ProposedAction {
	return models.ProposedAction{
		ActionType: models.ActionCheckInRequest,
		Confidence: 0.5,
		Priority:   models.PriorityLow,
	}
}

func TestCycleHandler(t *testing.T) {
	ts := newTestServer(t, checkIn())
	ts.grantConsent(t, "athlete-1", models.ConsentAgentCoaching)

	rr := ts.do(t, http.MethodPost, "/agent/cycle?subject=athlete-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("api status = %s, want ok", resp.Status)
	}
	if n, _ := ts.store.CountActions("athlete-1"); n != 1 {
		t.Errorf("actions persisted = %d, want 1", n)
	}
}

func TestCycleHandlerConsentBlocked(t *testing.T) {
	ts := newTestServer(t, checkIn())
	ts.store.SaveConsent(models.AgentConsent{SubjectID: "athlete-1", IsWithdrawn: true})

	rr := ts.do(t, http.MethodPost, "/agent/cycle?subject=athlete-1", nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
	resp := decodeResponse(t, rr)
	if resp.Status != string(models.APIStatusBlocked) {
		t.Errorf("api status = %s, want blocked", resp.Status)
	}
}

func TestCycleHandlerRequiresSubject(t *testing.T) {
	ts := newTestServer(t)
	if rr := ts.do(t, http.MethodPost, "/agent/cycle", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/agent/cycle?subject=athlete-1", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}

func TestActionsHandler(t *testing.T) {
	ts := newTestServer(t, checkIn())
	ts.grantConsent(t, "athlete-1", models.ConsentAgentCoaching)
	ts.do(t, http.MethodPost, "/agent/cycle?subject=athlete-1", nil)

	rr := ts.do(t, http.MethodGet, "/agent/actions?subject=athlete-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp struct {
		Status models.APIStatus     `json:"status"`
		Result []models.AgentAction `json:"result"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(resp.Result) != 1 || resp.Result[0].Status != models.StatusProposed {
		t.Errorf("pending actions = %+v", resp.Result)
	}

	if rr := ts.do(t, http.MethodGet, "/agent/actions?subject=athlete-1&status=bogus", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("invalid status filter: status = %d, want 400", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/agent/actions?subject=athlete-1&status=accepted", nil); rr.Code != http.StatusOK {
		t.Errorf("status filter: status = %d, want 200", rr.Code)
	}
}

func TestAcceptAndRejectHandlers(t *testing.T) {
	ts := newTestServer(t, checkIn(), checkIn())
	ts.grantConsent(t, "athlete-1", models.ConsentAgentCoaching)
	ts.do(t, http.MethodPost, "/agent/cycle?subject=athlete-1", nil)
	pending, _ := ts.lm.ListPending("athlete-1")
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}

	body, _ := json.Marshal(resolveRequest{ActionID: pending[0].ID, ResolvedBy: "athlete-1"})
	rr := ts.do(t, http.MethodPost, "/agent/actions/accept", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("accept status = %d: %s", rr.Code, rr.Body.String())
	}

	// Accepting again conflicts.
	if rr := ts.do(t, http.MethodPost, "/agent/actions/accept", body); rr.Code != http.StatusConflict {
		t.Errorf("repeat accept status = %d, want 409", rr.Code)
	}

	body, _ = json.Marshal(resolveRequest{ActionID: pending[1].ID, ResolvedBy: "athlete-1"})
	if rr := ts.do(t, http.MethodPost, "/agent/actions/reject", body); rr.Code != http.StatusOK {
		t.Errorf("reject status = %d", rr.Code)
	}

	body, _ = json.Marshal(resolveRequest{ActionID: "no-such-id", ResolvedBy: "athlete-1"})
	if rr := ts.do(t, http.MethodPost, "/agent/actions/accept", body); rr.Code != http.StatusNotFound {
		t.Errorf("unknown action status = %d, want 404", rr.Code)
	}

	if rr := ts.do(t, http.MethodPost, "/agent/actions/accept", []byte("{not json")); rr.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d, want 400", rr.Code)
	}
	if rr := ts.do(t, http.MethodPost, "/agent/actions/accept", []byte(`{"resolved_by":"x"}`)); rr.Code != http.StatusBadRequest {
		t.Errorf("missing action_id status = %d, want 400", rr.Code)
	}
}

func TestPreferencesHandler(t *testing.T) {
	ts := newTestServer(t)

	// GET synthesizes defaults.
	rr := ts.do(t, http.MethodGet, "/agent/preferences?subject=athlete-1&ai_coached=true", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp struct {
		Result models.AgentPreferences `json:"result"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Result.AutonomyLevel != models.AutonomySupervised {
		t.Errorf("default level = %s, want supervised", resp.Result.AutonomyLevel)
	}

	// PUT stores an update.
	prefs := models.AgentPreferences{
		SubjectID:                "athlete-1",
		AutonomyLevel:            models.AutonomyAutonomous,
		AllowWorkoutModification: true,
		AllowRestDayInjection:    true,
		MaxIntensityReduction:    30,
	}
	body, _ := json.Marshal(prefs)
	if rr := ts.do(t, http.MethodPut, "/agent/preferences", body); rr.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", rr.Code, rr.Body.String())
	}
	stored, _ := ts.store.GetPreferences("athlete-1")
	if stored == nil || stored.AutonomyLevel != models.AutonomyAutonomous {
		t.Error("preferences update not persisted")
	}

	// Invalid preferences are rejected.
	prefs.AutonomyLevel = "warp"
	body, _ = json.Marshal(prefs)
	if rr := ts.do(t, http.MethodPut, "/agent/preferences", body); rr.Code != http.StatusBadRequest {
		t.Errorf("invalid level status = %d, want 400", rr.Code)
	}
}

func TestConsentHandlers(t *testing.T) {
	ts := newTestServer(t)

	if rr := ts.do(t, http.MethodGet, "/agent/consent?subject=athlete-1", nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing consent status = %d, want 404", rr.Code)
	}

	body, _ := json.Marshal(models.AgentConsent{
		SubjectID: "athlete-1",
		Granted:   []models.ConsentCategory{models.ConsentAgentCoaching},
	})
	if rr := ts.do(t, http.MethodPut, "/agent/consent", body); rr.Code != http.StatusOK {
		t.Fatalf("put status = %d", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/agent/consent?subject=athlete-1", nil); rr.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", rr.Code)
	}

	if rr := ts.do(t, http.MethodPost, "/agent/consent/withdraw?subject=athlete-1", nil); rr.Code != http.StatusOK {
		t.Fatalf("withdraw status = %d", rr.Code)
	}
	stored, _ := ts.store.GetConsent("athlete-1")
	if stored == nil || !stored.IsWithdrawn {
		t.Error("withdrawal not persisted")
	}
}

func TestDataLifecycleHandlers(t *testing.T) {
	ts := newTestServer(t, checkIn())
	ts.grantConsent(t, "athlete-1", models.ConsentAgentCoaching)
	ts.do(t, http.MethodPost, "/agent/cycle?subject=athlete-1", nil)

	rr := ts.do(t, http.MethodGet, "/agent/data/summary?subject=athlete-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rr.Code)
	}
	var summaryResp struct {
		Result models.DataSummary `json:"result"`
	}
	json.NewDecoder(rr.Body).Decode(&summaryResp)
	if summaryResp.Result.Perceptions != 1 || summaryResp.Result.Actions != 1 {
		t.Errorf("summary = %+v", summaryResp.Result)
	}

	if rr := ts.do(t, http.MethodDelete, "/agent/data?subject=athlete-1", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("delete without requester status = %d, want 400", rr.Code)
	}

	rr = ts.do(t, http.MethodDelete, "/agent/data?subject=athlete-1&requested_by=athlete-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rr.Code, rr.Body.String())
	}
	var deleteResp struct {
		Result models.DeletionResult `json:"result"`
	}
	json.NewDecoder(rr.Body).Decode(&deleteResp)
	if deleteResp.Result.Counts.Perceptions != 1 || !deleteResp.Result.AuditLogged {
		t.Errorf("deletion result = %+v", deleteResp.Result)
	}
	if n, _ := ts.store.CountPerceptions("athlete-1"); n != 0 {
		t.Error("perceptions survived deletion")
	}
}

func TestAnonymizeHandler(t *testing.T) {
	ts := newTestServer(t)
	ts.store.SaveLearningEvent(models.LearningEvent{ID: "e1", SubjectID: "athlete-1", ActionType: models.ActionCheckInRequest, Outcome: "accepted", CreatedAt: time.Now()})

	rr := ts.do(t, http.MethodPost, "/agent/data/anonymize?subject=athlete-1&requested_by=coach-9", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("anonymize status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Result models.DeletionResult `json:"result"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Result.Counts.LearningEvents != 1 {
		t.Errorf("anonymized events = %d, want 1", resp.Result.Counts.LearningEvents)
	}
}
