package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/referral/internal/model"
)

// DBExecutor interface for database operations (can be *sqlx.DB or *sqlx.Tx)
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	Rebind(query string) string
}

var (
	_ DBExecutor = (*sqlx.DB)(nil)
	_ DBExecutor = (*sqlx.Tx)(nil)
)

// AttributionRepository stores referral codes, QR tokens and their counters.
// Every mutation is a single statement so uniqueness and counter atomicity are
// enforced by the database, not by callers.
type AttributionRepository struct {
	db      DBExecutor
	timeout time.Duration
}

// NewAttributionRepository creates a repository bounded by timeout per statement.
// A zero timeout leaves deadlines to the caller's context.
func NewAttributionRepository(db DBExecutor, timeout time.Duration) *AttributionRepository {
	return &AttributionRepository{db: db, timeout: timeout}
}

// withTimeout bounds a single statement. A non-positive d leaves the caller's deadline alone.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// UpsertReferral inserts the referral row unless one already exists for the pair.
// created reports whether this call inserted it.
func (r *AttributionRepository) UpsertReferral(ctx context.Context, campaignID, userID int64, code string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		INSERT INTO referrals (campaign_id, user_id, code)
		VALUES (?, ?, ?)
		ON CONFLICT (campaign_id, user_id) DO NOTHING
	`)

	result, err := r.db.ExecContext(ctx, query, campaignID, userID, code)
	if err != nil {
		return false, fmt.Errorf("failed to upsert referral: %w", classify(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// FindQRToken returns the token already issued for the pair.
func (r *AttributionRepository) FindQRToken(ctx context.Context, userID, campaignID int64) (string, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT qr_token
		FROM qr_codes
		WHERE user_id = ? AND campaign_id = ?
	`)

	var token string
	if err := r.db.GetContext(ctx, &token, query, userID, campaignID); err != nil {
		return "", fmt.Errorf("failed to find qr token: %w", classify(err))
	}
	return token, nil
}

// FindOrCreateToken returns the pair's token, creating it with generate if
// none exists. When concurrent callers race on the insert, the conflict is
// ignored and every caller reads back the single row that won.
func (r *AttributionRepository) FindOrCreateToken(ctx context.Context, userID, campaignID int64, generate func() (string, error)) (string, error) {
	token, err := r.FindQRToken(ctx, userID, campaignID)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	candidate, err := generate()
	if err != nil {
		return "", fmt.Errorf("failed to generate qr token: %w", err)
	}

	if err := r.insertToken(ctx, userID, campaignID, candidate); err != nil {
		return "", err
	}

	// Either our row or the winner's; both are committed at this point.
	token, err = r.FindQRToken(ctx, userID, campaignID)
	if err != nil {
		return "", err
	}
	return token, nil
}

func (r *AttributionRepository) insertToken(ctx context.Context, userID, campaignID int64, token string) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		INSERT INTO qr_codes (user_id, campaign_id, qr_token)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, campaign_id) DO NOTHING
	`)

	if _, err := r.db.ExecContext(ctx, query, userID, campaignID, token); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to insert qr token: %w", errors.Join(ErrTokenConflict, err))
		}
		return fmt.Errorf("failed to insert qr token: %w", classify(err))
	}
	return nil
}

// IncrementCounters adds one hit and one referral to the row owning token in a
// single UPDATE. It returns false when no row has that token.
func (r *AttributionRepository) IncrementCounters(ctx context.Context, token string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		UPDATE qr_codes
		SET hits = hits + 1, referrals = referrals + 1
		WHERE qr_token = ?
	`)

	result, err := r.db.ExecContext(ctx, query, token)
	if err != nil {
		return false, fmt.Errorf("failed to increment counters: %w", classify(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// GetCounters retrieves hits and referrals for a pair.
func (r *AttributionRepository) GetCounters(ctx context.Context, userID, campaignID int64) (*model.Counters, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT hits, referrals
		FROM qr_codes
		WHERE user_id = ? AND campaign_id = ?
	`)

	var counters model.Counters
	if err := r.db.GetContext(ctx, &counters, query, userID, campaignID); err != nil {
		return nil, fmt.Errorf("failed to get counters: %w", classify(err))
	}
	return &counters, nil
}

// GetReferralCount retrieves only the referral counter for a pair.
func (r *AttributionRepository) GetReferralCount(ctx context.Context, userID, campaignID int64) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT referrals
		FROM qr_codes
		WHERE user_id = ? AND campaign_id = ?
	`)

	var referrals int64
	if err := r.db.GetContext(ctx, &referrals, query, userID, campaignID); err != nil {
		return 0, fmt.Errorf("failed to get referral count: %w", classify(err))
	}
	return referrals, nil
}
