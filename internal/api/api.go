// Package api provides the HTTP surface of LeadFlow: the Meta webhook, the
// encrypted Flow data-exchange endpoints, and the admin/chat JSON API.
package api

import (
	"context"
	"crypto/rsa"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sungrid/leadflow/internal/conversation"
	"github.com/sungrid/leadflow/internal/flows"
	"github.com/sungrid/leadflow/internal/messaging"
	"github.com/sungrid/leadflow/internal/store"
	"github.com/sungrid/leadflow/internal/whatsapp"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string
	VerifyToken string
	PrivateKey  *rsa.PrivateKey
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the Meta webhook verify token.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// WithPrivateKey sets the RSA key the Flow endpoints decrypt with. Without
// it only plaintext dev payloads are accepted.
func WithPrivateKey(key *rsa.PrivateKey) Option {
	return func(o *Opts) { o.PrivateKey = key }
}

// Server wires the conversation engine, the Flow handler, and the store into
// HTTP endpoints.
type Server struct {
	store       store.Store
	engine      *conversation.Engine
	svc         messaging.Service
	flowHandler *flows.Handler
	webhook     *whatsapp.WebhookHandler
	privateKey  *rsa.PrivateKey
	addr        string
}

// NewServer creates the API server.
func NewServer(st store.Store, engine *conversation.Engine, svc messaging.Service, flowHandler *flows.Handler, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{
		store:       st,
		engine:      engine,
		svc:         svc,
		flowHandler: flowHandler,
		privateKey:  cfg.PrivateKey,
		addr:        cfg.Addr,
	}
	s.webhook = whatsapp.NewWebhookHandler(cfg.VerifyToken, s.processInbound)
	return s
}

// Router builds the chi router with all endpoints mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/webhook", s.webhook.HandleVerify)
	r.Post("/webhook", s.webhook.HandleIncoming)

	r.Post("/flows/{kind}", s.handleFlowExchange)

	r.Route("/api", func(r chi.Router) {
		r.Post("/messages", s.handleIncomingMessage)

		r.Post("/conversations/start", s.handleStartConversation)
		r.Get("/conversations/{phone}", s.handleGetConversation)
		r.Delete("/conversations/{phone}", s.handleDeleteConversation)

		r.Get("/templates", s.handleListTemplates)
		r.Post("/templates", s.handleCreateTemplate)
		r.Get("/templates/{id}", s.handleGetTemplate)
		r.Put("/templates/{id}", s.handleUpdateTemplate)
		r.Delete("/templates/{id}", s.handleDeleteTemplate)

		r.Get("/leads", s.handleListLeads)
		r.Get("/callbacks", s.handleListCallbacks)
		r.Get("/service-requests", s.handleListServiceRequests)
		r.Get("/price-estimates", s.handleListPriceEstimates)
		r.Get("/issues", s.handleListIssues)
		r.Get("/events", s.handleListEvents)
	})

	return r
}

// Run serves until ctx is cancelled, then drains with a shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
