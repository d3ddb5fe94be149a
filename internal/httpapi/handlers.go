package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/skio-race/internal/hub"
	"github.com/DoyleJ11/skio-race/internal/metrics"
	"github.com/DoyleJ11/skio-race/internal/room"
	"github.com/DoyleJ11/skio-race/pkg/types"
)

const viewTimeout = 2 * time.Second

func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := h.Ensure(r.Context(), "")
		if err != nil || rm == nil {
			log.Error("create room", zap.Error(err))
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, struct {
			Code string `json:"code"`
		}{Code: rm.Code()})
	}
}

func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codes, err := h.List(r.Context())
		if err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Rooms []string `json:"rooms"`
		}{Rooms: codes})
	}
}

// GetRoom answers with the same state a websocket client would see.
func GetRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := h.Get(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), viewTimeout)
		defer cancel()
		reply := make(chan room.View, 1)
		if !rm.Send(ctx, room.GetState{Reply: reply}) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		select {
		case v := <-reply:
			writeJSON(w, http.StatusOK, struct {
				Clients int  `json:"clients"`
				Closed  bool `json:"closed"`
				State   any  `json:"state"`
			}{Clients: v.NumClients, Closed: v.Closed, State: v.State})
		case <-rm.Done():
			http.Error(w, "room not found", http.StatusNotFound)
		case <-ctx.Done():
			http.Error(w, "timed out", http.StatusGatewayTimeout)
		}
	}
}

func Metrics(m *metrics.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m.Snapshot())
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// requestLogger logs each request at debug once it completes.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
