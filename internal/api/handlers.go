package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vitaliisemenov/svc-facilitator/internal/api/middleware"
	"github.com/vitaliisemenov/svc-facilitator/internal/api/problem"
	"github.com/vitaliisemenov/svc-facilitator/internal/facilitator"
)

// Handlers holds the Mirror Store and logger shared by every facilitator
// HTTP endpoint.
type Handlers struct {
	store  *facilitator.Store
	v      *facilitator.Validator
	logger *slog.Logger
}

// NewHandlers constructs the facilitator's HTTP handler set.
func NewHandlers(store *facilitator.Store, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: store, v: facilitator.NewValidator(), logger: logger}
}

// Resolve serves GET <base>/resolve?key=<slug@version>.
func (h *Handlers) Resolve(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	key := r.URL.Query().Get("key")
	if key == "" {
		problem.WriteMissingKey(w, requestID)
		return
	}
	h.resolveKey(w, r, requestID, key)
}

// ResolvePath serves GET <base>/resolve/:slug/v:version.
func (h *Handlers) ResolvePath(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	vars := mux.Vars(r)
	slug := vars["slug"]
	versionStr := vars["version"]

	version, err := strconv.Atoi(versionStr)
	if err != nil || version < 1 {
		problem.WriteError(w, requestID, &facilitator.Error{
			Kind: facilitator.KindValidation, Reason: facilitator.ReasonBadID,
			Field: "version", Detail: "version must be a positive integer",
		})
		return
	}

	h.resolveKey(w, r, requestID, facilitator.SvcKey(slug, version))
}

func (h *Handlers) resolveKey(w http.ResponseWriter, r *http.Request, requestID, key string) {
	entry, ferr := h.store.ResolveOne(r.Context(), key)
	if ferr != nil {
		problem.WriteError(w, requestID, ferr)
		return
	}
	problem.WriteOK(w, requestID, entry)
}

// Mirror serves GET <base>/mirror.
func (h *Handlers) Mirror(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	snap, err := h.store.GetWithTTL(r.Context())
	if err != nil {
		problem.WriteError(w, requestID, &facilitator.Error{Kind: facilitator.KindInternal, Detail: err.Error()})
		return
	}

	if len(snap.Map) == 0 {
		problem.WriteError(w, requestID, &facilitator.Error{
			Kind: facilitator.KindUnavailable, Detail: "mirror_unavailable",
		})
		return
	}

	problem.WriteOK(w, requestID, map[string]any{"mirror": snap.Map})
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type readyResponse struct {
	Ready  bool   `json:"ready"`
	Source string `json:"source,omitempty"`
	Count  int    `json:"count"`
}

// Health serves GET /healthz: liveness only, never touches the mirror.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(healthResponse{Status: "ok", Service: "facilitator"})
}

// Ready serves GET /readyz: readiness is true once the mirror has been
// populated at least once, regardless of which source backed it.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Current()

	resp := readyResponse{Ready: snap != nil}
	if snap != nil {
		resp.Source = string(snap.ExternalSource())
		resp.Count = len(snap.Map)
	}

	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(resp)
}

type pushRequestBody struct {
	Mirror any `json:"mirror"`
}

type pushResponseBody struct {
	Accepted  bool                       `json:"accepted"`
	Services  int                        `json:"services"`
	Source    facilitator.SnapshotSource `json:"source"`
	FetchedAt string                     `json:"fetchedAt"`
	LKGSaved  bool                       `json:"lkgSaved"`
}

// MirrorLoad serves POST <base>/mirror/load.
func (h *Handlers) MirrorLoad(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var body pushRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problem.WriteMirrorLoadError(w, requestID, &facilitator.Error{
			Kind: facilitator.KindValidation, Detail: "request body must be valid JSON",
		})
		return
	}

	mirror, ferr := h.v.ParseMirror(body.Mirror)
	if ferr != nil {
		problem.WriteMirrorLoadError(w, requestID, ferr)
		return
	}

	snap, lkgSaved := h.store.ReplaceWithPush(r.Context(), mirror, requestID)

	resp := pushResponseBody{
		Accepted:  true,
		Services:  len(snap.Map),
		Source:    snap.ExternalSource(),
		FetchedAt: snap.FetchedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		LKGSaved:  lkgSaved,
	}
	problem.WriteStatus(w, http.StatusOK, requestID, resp)
}
