package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/skio-race/internal/hub"
	"github.com/DoyleJ11/skio-race/internal/metrics"
	"github.com/DoyleJ11/skio-race/pkg/types"
)

func newTestRouter(t *testing.T) (http.Handler, *hub.Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := hub.NewHub(ctx, hub.Options{})
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return SetupRoutes(Deps{Hub: h, Metrics: &metrics.Registry{}}), h
}

func do(t *testing.T, handler http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestCreateRoom_ThenGet(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/rooms")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Len(t, created.Code, 6)

	rec = do(t, router, http.MethodGet, "/rooms/"+created.Code)
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Clients int             `json:"clients"`
		State   types.RoomState `json:"state"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, created.Code, view.State.RoomCode)
	assert.Equal(t, "lobby", view.State.Phase)
	assert.Zero(t, view.Clients)
	assert.Positive(t, view.State.MapSeed)

	rec = do(t, router, http.MethodGet, "/rooms")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), created.Code)
}

func TestGetRoom_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := do(t, router, http.MethodGet, "/rooms/MISSING")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/healthz").Code)

	rec := do(t, router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	var counters map[string]int64
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&counters))
	assert.Contains(t, counters, "rooms_open")
	assert.Contains(t, counters, "connections")
}
