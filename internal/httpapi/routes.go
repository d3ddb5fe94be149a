package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/skio-race/internal/hub"
	"github.com/DoyleJ11/skio-race/internal/metrics"
	"github.com/DoyleJ11/skio-race/internal/ws"
)

type Deps struct {
	Hub              *hub.Hub
	Metrics          *metrics.Registry
	Logger           *zap.Logger
	OriginPatterns   []string
	WSMessagesPerSec float64
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	log := d.Logger.Named("http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	// Public routes
	r.Post("/rooms", CreateRoom(d.Hub, log))
	r.Get("/rooms", ListRooms(d.Hub))
	r.Get("/rooms/{code}", GetRoom(d.Hub))
	r.Get("/healthz", Healthz)
	r.Get("/metrics", Metrics(d.Metrics))
	r.Get("/ws", ws.Handler(ws.Options{
		Hub:            d.Hub,
		OriginPatterns: d.OriginPatterns,
		MessagesPerSec: d.WSMessagesPerSec,
		Logger:         d.Logger,
		Metrics:        d.Metrics,
	}))
	return r
}
