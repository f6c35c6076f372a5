package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/kkkkikiki/referral/internal/metrics"
	"github.com/kkkkikiki/referral/internal/repository"
)

// tokenBytes is 128 bits of randomness.
const tokenBytes = 16

// TokenStore resolves the check-then-insert race for QR tokens.
type TokenStore interface {
	FindOrCreateToken(ctx context.Context, userID, campaignID int64, generate func() (string, error)) (string, error)
}

// QRTokenIssuer hands out one random token per pair. The first token that
// reaches the store is the one every caller gets back, forever.
type QRTokenIssuer struct {
	store    TokenStore
	generate func() (string, error)
}

// NewQRTokenIssuer creates an issuer backed by crypto/rand tokens.
func NewQRTokenIssuer(store TokenStore) *QRTokenIssuer {
	return &QRTokenIssuer{store: store, generate: NewToken}
}

// NewToken returns 128 random bits, hex encoded.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Issue returns the pair's token, generating and storing one on first use.
// Foreign keys are not checked here; callers validate the pair.
func (s *QRTokenIssuer) Issue(ctx context.Context, userID, campaignID int64) (string, error) {
	start := time.Now()
	status := metrics.StatusFailed
	defer func() {
		metrics.RecordIssue("qr", status, time.Since(start).Seconds())
	}()

	if err := validatePair(userID, campaignID); err != nil {
		status = metrics.StatusInvalid
		return "", err
	}

	var candidate string
	token, err := s.store.FindOrCreateToken(ctx, userID, campaignID, func() (string, error) {
		var genErr error
		candidate, genErr = s.generate()
		return candidate, genErr
	})
	if err != nil {
		if errors.Is(err, repository.ErrTokenConflict) {
			return "", fmt.Errorf("%w: %w", ErrIssuance, err)
		}
		return "", storeError("find or create qr token", err)
	}
	if candidate != "" && token == candidate {
		metrics.RecordCreated("qr")
	}

	status = metrics.StatusSuccess
	return token, nil
}
