// Package api exposes the bot over HTTP: provider webhooks, health and
// metrics, and the order desk endpoints used by restaurant staff.
package api

import (
	"net/http"
	"time"

	"github.com/AssadourKH/NEWAIBOT/internal/messaging"
	"github.com/AssadourKH/NEWAIBOT/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server defaults.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultRequestTimeout bounds order desk requests. Webhooks answer as
	// soon as the delivery is queued.
	DefaultRequestTimeout = 30 * time.Second
)

// Opts holds HTTP server configuration.
type Opts struct {
	Addr            string
	ShutdownTimeout time.Duration
	Gatherer        prometheus.Gatherer
}

// Option configures the server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ShutdownTimeout = d }
}

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *Opts) { o.Gatherer = g }
}

// Server routes HTTP traffic to the messaging service and the store.
type Server struct {
	opts       Opts
	msgService messaging.Service
	st         store.Repository
	router     chi.Router
}

// NewServer builds the router. Webhook routes are mounted for the transports
// that receive traffic over HTTP.
func NewServer(msgService messaging.Service, st store.Repository, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr, ShutdownTimeout: DefaultShutdownTimeout, Gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{opts: o, msgService: msgService, st: st}
	s.router = s.routes()
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.opts.Addr
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	switch svc := s.msgService.(type) {
	case *messaging.MetaService:
		r.Get("/webhook", svc.VerifyHandler)
		r.Post("/webhook", svc.WebhookHandler)
	case *messaging.TwilioService:
		r.Post("/webhook/twilio", svc.TwilioWebhookHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(DefaultRequestTimeout))
		r.Get("/orders", s.listOrdersHandler)
		r.Patch("/orders/{id}/status", s.updateOrderStatusHandler)
		r.Get("/branches", s.listBranchesHandler)
		r.Post("/branches", s.addBranchHandler)
	})
	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
