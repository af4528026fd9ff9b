package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/svc-facilitator/internal/facilitator"
)

func testRouterStore(t *testing.T) *facilitator.Store {
	t.Helper()
	dir := t.TempDir()
	lkg := facilitator.NewLKGStore(filepath.Join(dir, "mirror-lkg.json"), nil, "mirror_lkg", nil)
	loader := facilitator.NewLoader(nil, "service_configs", "route_policies")
	store := facilitator.NewStore(loader, lkg, facilitator.StoreConfig{
		TTL: time.Minute, NegativeTTL: time.Minute, MaxEntries: 100,
	}, nil, nil)

	mirror := facilitator.MirrorMap{
		"billing@1": {
			ServiceConfig: facilitator.ServiceConfig{
				ID: "svc-1", Slug: "billing", Version: 1, Enabled: true,
				BaseURL: "https://billing.internal", OutboundAPIPrefix: "/v1/billing",
			},
		},
	}
	store.ReplaceWithPush(context.Background(), mirror, "seed")
	return store
}

func TestRouterMountsVersionedBase(t *testing.T) {
	store := testRouterStore(t)
	cfg := DefaultRouterConfig("orders", nil)
	router := NewRouter(store, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/v1/resolve?key=billing@1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterPathGuardReturns404Envelope(t *testing.T) {
	store := testRouterStore(t)
	cfg := DefaultRouterConfig("orders", nil)
	router := NewRouter(store, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/wrong-slug/v1/resolve", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body["error"])
}

func TestRouterHealthAndReadyMountedOutsideVersionedBase(t *testing.T) {
	store := testRouterStore(t)
	cfg := DefaultRouterConfig("orders", nil)
	router := NewRouter(store, cfg)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.NotEqual(t, http.StatusNotFound, rr.Code, "path %s should be mounted", path)
	}
}

func TestRouterMetricsEndpointDisableable(t *testing.T) {
	store := testRouterStore(t)
	cfg := DefaultRouterConfig("orders", nil)
	cfg.EnableMetrics = false
	router := NewRouter(store, cfg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterMirrorLoadRequiresPost(t *testing.T) {
	store := testRouterStore(t)
	cfg := DefaultRouterConfig("orders", nil)
	router := NewRouter(store, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/v1/mirror/load", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRouterRecoversFromPanic(t *testing.T) {
	store := testRouterStore(t)
	cfg := DefaultRouterConfig("orders", nil)
	router := NewRouter(store, cfg)
	router.HandleFunc("/api/orders/v1/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/v1/panic", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body["error"])
}

func TestRouterResolvePathVariant(t *testing.T) {
	store := testRouterStore(t)
	cfg := DefaultRouterConfig("orders", nil)
	router := NewRouter(store, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/v1/resolve/billing/v1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}
