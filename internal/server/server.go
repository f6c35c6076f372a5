// Package server exposes the attribution services over HTTP and Connect.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kkkkikiki/referral/internal/config"
	"github.com/kkkkikiki/referral/internal/service"
)

// Pinger reports store reachability for /health/db.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles everything the handlers call into.
type Services struct {
	Referrals *service.ReferralIssuer
	QRCodes   *service.QRTokenIssuer
	Scans     *service.ScanHandler
	Query     *service.QueryFacade
	Campaigns *service.CampaignService
}

// Server routes REST and RPC requests to the services.
type Server struct {
	svc           Services
	db            Pinger
	logger        *slog.Logger
	maxImageBytes int64
}

// New creates a Server. maxImageBytes bounds campaign image uploads.
func New(svc Services, db Pinger, logger *slog.Logger, maxImageBytes int64) *Server {
	return &Server{
		svc:           svc,
		db:            db,
		logger:        logger,
		maxImageBytes: maxImageBytes,
	}
}

// Handler returns the full route table wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /generate-referral", s.handleGenerateReferral)
	mux.HandleFunc("GET /referidos", s.handleReferralTotal)
	mux.HandleFunc("POST /generate-qr", s.handleGenerateQR)
	mux.HandleFunc("GET /scan", s.handleScan)
	mux.HandleFunc("GET /referrals/{user_id}/{campaign_id}", s.handleReferrals)

	mux.HandleFunc("POST /creacampana", s.handleCreateCampaign)
	mux.HandleFunc("GET /usercampana", s.handleUserCampaigns)
	mux.HandleFunc("GET /campaign/{id}", s.handleGetCampaign)
	mux.HandleFunc("GET /getuserid", s.handleGetUserID)

	s.registerRPC(mux)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/db", s.handleHealthDB)
	mux.Handle("GET /metrics", promhttp.Handler())

	var h http.Handler = mux
	h = recoverMiddleware(s.logger, h)
	h = loggingMiddleware(s.logger, h)
	h = tracingMiddleware(h)
	h = requestIDMiddleware(h)
	return h
}

// NewHTTPServer wraps handler in h2c so HTTP/2 works without TLS.
func NewHTTPServer(cfg *config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:           cfg.GetServerAddr(),
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
		Handler: h2c.NewHandler(handler, &http2.Server{
			MaxConcurrentStreams: 1000,
		}),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"service":  "referral-service",
		"hostname": hostname,
	})
}

func (s *Server) handleHealthDB(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.logger.WarnContext(r.Context(), "store ping failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": "store unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "store": "connected"})
}
