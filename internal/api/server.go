// Package api implements the HTTP layer for the Detectar al Narcisista
// funnel. Handlers are methods on *Server. Each handler file is responsible
// for one resource group and only imports the dependencies it actually uses.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/historiasdelamente/detectar-backend/internal/crm"
	"github.com/historiasdelamente/detectar-backend/internal/db"
	"github.com/historiasdelamente/detectar-backend/internal/email"
	"github.com/historiasdelamente/detectar-backend/internal/fulfill"
	"github.com/historiasdelamente/detectar-backend/internal/payment"
	"github.com/historiasdelamente/detectar-backend/internal/store"
	"github.com/historiasdelamente/detectar-backend/internal/worker"
)

// Config holds values read from environment variables at startup.
type Config struct {
	// BaseURL is the public origin of this deployment,
	// e.g. "https://detectaralnarcisista.com".
	BaseURL string

	// CronSecret is the bearer token the external scheduler presents on
	// GET /api/cron/send-emails.
	CronSecret string

	// Env is "production", "staging", or "development".
	Env string
}

// Server holds all shared dependencies. Each handler file attaches methods to
// this type and uses only the fields it needs.
type Server struct {
	// q handles all single-query reads. Injected directly — no repo wrapper.
	q db.Querier

	// store handles the conditional writes (enrollment, session convergence).
	store *store.Store

	// fulfill runs the approve-then-deliver sequence shared by the capture
	// and webhook endpoints.
	fulfill *fulfill.Orchestrator

	// provider is the active payment gateway for this deployment.
	provider payment.Provider

	// sweeper runs one drip-sequence pass on demand for the cron endpoint.
	sweeper worker.Sweeper

	// mailer sends the immediate step-1 email on contact capture.
	mailer email.Sender

	// crm mirrors captured leads to Airtable, fire-and-forget.
	crm crm.Recorder

	cfg    Config
	logger *slog.Logger
}

// NewServer constructs the Server and wires the chi router. The returned
// http.Handler is ready to pass to http.ListenAndServe.
func NewServer(
	q db.Querier,
	st *store.Store,
	orch *fulfill.Orchestrator,
	provider payment.Provider,
	sweeper worker.Sweeper,
	mailer email.Sender,
	recorder crm.Recorder,
	cfg Config,
	logger *slog.Logger,
) http.Handler {
	s := &Server{
		q:        q,
		store:    st,
		fulfill:  orch,
		provider: provider,
		sweeper:  sweeper,
		mailer:   mailer,
		crm:      recorder,
		cfg:      cfg,
		logger:   logger,
	}

	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)
	r.Use(middleware.Timeout(30 * time.Second))

	// ── Health ────────────────────────────────────────────────────────────────
	r.Get("/healthz", s.handleHealthz)

	// ── API ───────────────────────────────────────────────────────────────────
	r.Route("/api", func(r chi.Router) {

		// Contact capture — creates/updates the session and enrolls the
		// address in the drip sequence.
		r.Post("/capture-email", s.handleCaptureEmail)

		// Sequence sweep — bearer-token guarded, called by the external cron.
		r.With(s.requireCronSecret).Get("/cron/send-emails", s.handleRunSweep)

		// Payments. Capture serves the direct-capture gateway; the webhook
		// serves the redirect gateway. Both converge on the same fulfillment.
		r.Route("/payment", func(r chi.Router) {
			r.Post("/create", s.handleCreatePayment)
			r.Post("/capture", s.handleCapturePayment)
			r.Post("/webhook", s.handlePaymentWebhook)
		})

		// Report re-delivery for paid sessions.
		r.Post("/send-report", s.handleSendReport)
	})

	return r
}

// handleHealthz reports process and database liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("healthz: database unreachable", "error", err)
		respondErr(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
