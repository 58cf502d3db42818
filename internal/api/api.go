// Package api provides the HTTP surface for SlotPipe: the provider
// cancellation webhook, the inbound reply webhooks, and inspection endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/SlotPipe/internal/models"
	"github.com/BTreeMap/SlotPipe/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// AccountIDHeader carries the owning account on cancellation webhooks.
const AccountIDHeader = "X-Account-ID"

// CampaignEngine is the slice of the campaign engine the HTTP surface needs.
type CampaignEngine interface {
	HandleCancellation(ctx context.Context, accountID string, ev models.CancellationEvent) (*models.Campaign, error)
	HandleReply(ctx context.Context, reply models.InboundReply) error
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server hosts the SlotPipe HTTP endpoints.
type Server struct {
	engine    CampaignEngine
	campaigns store.CampaignRepo
	httpSrv   *http.Server
}

// NewServer creates an API server over the engine and campaign store.
func NewServer(engine CampaignEngine, campaigns store.CampaignRepo, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{engine: engine, campaigns: campaigns}
	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Routes builds the request mux. Exposed so tests can drive handlers through
// httptest without binding a socket.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/cancellations", s.cancellationHandler)
	mux.HandleFunc("/v1/replies/email", s.emailReplyHandler)
	mux.HandleFunc("/v1/replies/sms", s.smsReplyHandler)
	mux.HandleFunc("/v1/campaigns", s.campaignsHandler)
	mux.HandleFunc("/v1/campaigns/", s.campaignHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}
