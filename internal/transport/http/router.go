package http

import (
	"net/http"
	"time"

	httpmw "github.com/ngo-portal/event-chat/internal/transport/http/middleware"
	"github.com/ngo-portal/event-chat/pkg/httputil"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	// Ready reports readiness for /healthz; nil means always ready.
	Ready func() bool
}

func NewRouter(h *Handler, auth httpmw.Authenticator, wsHandler http.HandlerFunc, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middlewareChi.RealIP)
	r.Use(httputil.MiddlewareRequestID)
	r.Use(httputil.MiddlewareLogging)
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", httputil.HeaderRequestID},
		ExposedHeaders: []string{httputil.HeaderRequestID, HeaderNextCursor},
		MaxAge:         300,
	}))

	// WS endpoint: аутентификация внутри, до upgrade
	if wsHandler != nil {
		r.Get("/ws", wsHandler)
	}

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.Auth(auth))
		pr.Use(middlewareChi.Timeout(cfg.RequestTimeout))

		pr.Route("/events/{id}/messages", func(rm chi.Router) {
			rm.Get("/", h.ListMessages)
			rm.Post("/", h.PostMessage)
		})
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil && !cfg.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("shutting down"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
