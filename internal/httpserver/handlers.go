package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"recruit/internal/domain"
	"recruit/internal/service"
	"recruit/internal/store"
	"recruit/internal/util"
)

// UserHeader identifies the caller for saved worklist filters.
const UserHeader = "X-User-ID"

type API struct {
	Messaging *service.MessagingService
	Worklist  *service.WorklistService
	IDGen     func() string
	// Now defaults to util.NowUTC.
	Now func() time.Time
}

func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/v1/send-state", a.handleEvaluate).Methods(http.MethodPost)
	r.HandleFunc("/v1/threads/{id}/send-state", a.handleThreadSendState).Methods(http.MethodGet)
	r.HandleFunc("/v1/threads/{id}/messages", a.handleSendMessage).Methods(http.MethodPost)
	r.HandleFunc("/v1/messages/{id}", a.handleGetMessage).Methods(http.MethodGet)
	r.HandleFunc("/v1/candidates/classify", a.handleClassify).Methods(http.MethodPost)
	r.HandleFunc("/v1/worklist", a.handleWorklist).Methods(http.MethodGet)
	r.HandleFunc("/v1/settings/worklist-filter", a.handleGetFilter).Methods(http.MethodGet)
	r.HandleFunc("/v1/settings/worklist-filter", a.handlePutFilter).Methods(http.MethodPut)
}

func (a *API) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return util.NowUTC()
}

type evaluateRequest struct {
	Thread    *domain.Thread   `json:"thread"`
	Page      *domain.Page     `json:"page"`
	ActorRole domain.ActorRole `json:"actorRole"`
	Now       domain.Timestamp `json:"now,omitempty"`
}

type sendStateResponse struct {
	ThreadID  string           `json:"threadId,omitempty"`
	SendState domain.SendState `json:"sendState"`
}

func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	now, ok := a.parseNow(w, req.Now)
	if !ok {
		return
	}
	state, err := a.Messaging.Evaluate(req.Thread, req.Page, req.ActorRole, now)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sendStateResponse{ThreadID: threadID(req.Thread), SendState: state})
}

func (a *API) handleThreadSendState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	role := domain.ActorRole(r.URL.Query().Get("role"))
	if role == "" {
		role = domain.RoleCA
	}
	if !role.Valid() {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}
	state, _, err := a.Messaging.SendState(r.Context(), id, role, a.now())
	if err != nil {
		if !isClientError(err) {
			slog.Error("send state failed", "err", err, "thread_id", id)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sendStateResponse{ThreadID: id, SendState: state})
}

func (a *API) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req domain.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	req.ThreadID = mux.Vars(r)["id"]
	if key := r.Header.Get("Idempotency-Key"); key != "" && req.IdempotencyKey == "" {
		req.IdempotencyKey = key
	}

	resp, err := a.Messaging.CreateAndEnqueue(r.Context(), req, a.IDGen(), a.now())
	if err != nil {
		if !isClientError(err) {
			slog.Error("create and enqueue message failed",
				"err", err,
				"thread_id", req.ThreadID,
				"idempotency_key", req.IdempotencyKey,
				"actor_role", req.ActorRole,
			)
		}
		writeError(w, err)
		return
	}

	status := http.StatusAccepted
	if resp.State == string(domain.StateRejected) {
		status = http.StatusConflict
	}
	writeJSON(w, status, resp)
}

func (a *API) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}
	msg, found, err := a.Messaging.GetMessage(r.Context(), id)
	if err != nil {
		slog.Error("get message failed", "err", err, "id", id)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	if !found {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

type classifyRequest struct {
	Candidates []domain.Candidate `json:"candidates"`
	Now        domain.Timestamp   `json:"now,omitempty"`
}

func (a *API) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	now, ok := a.parseNow(w, req.Now)
	if !ok {
		return
	}
	entries, err := a.Worklist.Classify(r.Context(), req.Candidates, now)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleWorklist(w http.ResponseWriter, r *http.Request) {
	user := r.Header.Get(UserHeader)
	override, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wl, err := a.Worklist.List(r.Context(), user, override, a.now())
	if err != nil {
		if !isClientError(err) {
			slog.Error("worklist failed", "err", err, "user_id", user)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wl)
}

func (a *API) handleGetFilter(w http.ResponseWriter, r *http.Request) {
	user := r.Header.Get(UserHeader)
	if user == "" {
		http.Error(w, ErrMissingUser, http.StatusBadRequest)
		return
	}
	f, err := a.Worklist.GetFilter(r.Context(), user)
	if err != nil {
		slog.Error("get worklist filter failed", "err", err, "user_id", user)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (a *API) handlePutFilter(w http.ResponseWriter, r *http.Request) {
	user := r.Header.Get(UserHeader)
	if user == "" {
		http.Error(w, ErrMissingUser, http.StatusBadRequest)
		return
	}
	var f domain.WorklistFilter
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if err := a.Worklist.SaveFilter(r.Context(), user, f); err != nil {
		if !isClientError(err) {
			slog.Error("save worklist filter failed", "err", err, "user_id", user)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// filterFromQuery returns nil when no filter parameters are present.
func filterFromQuery(r *http.Request) (*domain.WorklistFilter, error) {
	q := r.URL.Query()
	keys := []string{"ownerCA", "status", "requiresResponse", "delay", "limit"}
	present := false
	for _, k := range keys {
		if q.Has(k) {
			present = true
			break
		}
	}
	if !present {
		return nil, nil
	}

	f := &domain.WorklistFilter{OwnerCA: q.Get("ownerCA"), DelayTiers: q["delay"]}
	for _, s := range q["status"] {
		f.Statuses = append(f.Statuses, domain.CandidateStatus(s))
	}
	if v := q.Get("requiresResponse"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.New("requiresResponse must be a boolean")
		}
		f.RequiresResponseOnly = b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.New("limit must be an integer")
		}
		f.Limit = n
	}
	return f, nil
}

func (a *API) parseNow(w http.ResponseWriter, ts domain.Timestamp) (time.Time, bool) {
	if ts.IsZero() {
		return a.now(), true
	}
	t, err := ts.Time()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return time.Time{}, false
	}
	return t, true
}

func isClientError(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrMissingFields) ||
		errors.Is(err, domain.ErrMalformedTimestamp) ||
		errors.Is(err, store.ErrNotFound)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, ErrNotFound, http.StatusNotFound)
	case isClientError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, ErrDependency, http.StatusBadGateway)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func threadID(t *domain.Thread) string {
	if t == nil {
		return ""
	}
	return t.ID
}
