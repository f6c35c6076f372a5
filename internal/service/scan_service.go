package service

import (
	"context"
	"strings"
	"time"

	"github.com/kkkkikiki/referral/internal/metrics"
)

// maxTokenLength bounds what is sent to the store; issued tokens are 32 chars.
const maxTokenLength = 128

// CounterStore applies scan increments.
type CounterStore interface {
	IncrementCounters(ctx context.Context, token string) (bool, error)
}

// ScanHandler is the hot path: resolve a token, bump both counters in one
// store operation, and hand back where to send the visitor.
type ScanHandler struct {
	store    CounterStore
	redirect string
}

// NewScanHandler creates a handler that redirects successful scans to redirectURL.
func NewScanHandler(store CounterStore, redirectURL string) *ScanHandler {
	return &ScanHandler{store: store, redirect: redirectURL}
}

// Scan counts one visit for token and returns the redirect target.
func (s *ScanHandler) Scan(ctx context.Context, token string) (string, error) {
	start := time.Now()
	status := metrics.StatusFailed
	defer func() {
		metrics.RecordScan(status, time.Since(start).Seconds())
	}()

	token = strings.TrimSpace(token)
	if token == "" {
		status = metrics.StatusInvalid
		return "", validationf("token is required")
	}
	if len(token) > maxTokenLength {
		status = metrics.StatusInvalid
		return "", validationf("token is too long")
	}

	affected, err := s.store.IncrementCounters(ctx, token)
	if err != nil {
		return "", storeError("increment counters", err)
	}
	if !affected {
		status = metrics.StatusNotFound
		return "", ErrNotFound
	}

	status = metrics.StatusSuccess
	return s.redirect, nil
}
