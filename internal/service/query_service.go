package service

import (
	"context"
	"errors"
	"strings"

	"github.com/kkkkikiki/referral/internal/model"
)

// CounterReader reads current counters.
type CounterReader interface {
	GetCounters(ctx context.Context, userID, campaignID int64) (*model.Counters, error)
	GetReferralCount(ctx context.Context, userID, campaignID int64) (int64, error)
}

// CampaignReader reads stored campaigns.
type CampaignReader interface {
	GetCampaign(ctx context.Context, id int64) (*model.Campaign, error)
	ListCampaignsByUser(ctx context.Context, userID int64) ([]model.Campaign, error)
}

// UserDirectory resolves usernames.
type UserDirectory interface {
	GetUserIDByUsername(ctx context.Context, username string) (int64, error)
}

// QueryFacade is the read side used by dashboards. Reads go straight to the
// store so they always see the latest committed increment.
type QueryFacade struct {
	counters  CounterReader
	campaigns CampaignReader
	users     UserDirectory
}

// NewQueryFacade creates a new QueryFacade
func NewQueryFacade(counters CounterReader, campaigns CampaignReader, users UserDirectory) *QueryFacade {
	return &QueryFacade{counters: counters, campaigns: campaigns, users: users}
}

// GetHits returns the pair's hit count. ErrNotFound means no QR token was
// ever issued for the pair; an issued but unscanned token yields 0.
func (q *QueryFacade) GetHits(ctx context.Context, userID, campaignID int64) (int64, error) {
	counters, err := q.GetCounters(ctx, userID, campaignID)
	if err != nil {
		return 0, err
	}
	return counters.Hits, nil
}

// HitsOrZero is GetHits with a missing pair reported as 0.
func (q *QueryFacade) HitsOrZero(ctx context.Context, userID, campaignID int64) (int64, error) {
	hits, err := q.GetHits(ctx, userID, campaignID)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	return hits, err
}

// GetCounters returns both counters for the pair.
func (q *QueryFacade) GetCounters(ctx context.Context, userID, campaignID int64) (*model.Counters, error) {
	if err := validatePair(userID, campaignID); err != nil {
		return nil, err
	}
	counters, err := q.counters.GetCounters(ctx, userID, campaignID)
	if err != nil {
		return nil, storeError("get counters", err)
	}
	return counters, nil
}

// GetReferralTotal returns the pair's referral counter.
func (q *QueryFacade) GetReferralTotal(ctx context.Context, userID, campaignID int64) (int64, error) {
	if err := validatePair(userID, campaignID); err != nil {
		return 0, err
	}
	total, err := q.counters.GetReferralCount(ctx, userID, campaignID)
	if err != nil {
		return 0, storeError("get referral count", err)
	}
	return total, nil
}

// GetCampaign returns a single campaign.
func (q *QueryFacade) GetCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	if id <= 0 {
		return nil, validationf("campaign id must be a positive integer")
	}
	campaign, err := q.campaigns.GetCampaign(ctx, id)
	if err != nil {
		return nil, storeError("get campaign", err)
	}
	return campaign, nil
}

// ListCampaigns returns every campaign owned by userID.
func (q *QueryFacade) ListCampaigns(ctx context.Context, userID int64) ([]model.Campaign, error) {
	if userID <= 0 {
		return nil, validationf("user id must be a positive integer")
	}
	campaigns, err := q.campaigns.ListCampaignsByUser(ctx, userID)
	if err != nil {
		return nil, storeError("list campaigns", err)
	}
	return campaigns, nil
}

// ResolveUserID maps a username to its id.
func (q *QueryFacade) ResolveUserID(ctx context.Context, username string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, validationf("username is required")
	}
	id, err := q.users.GetUserIDByUsername(ctx, username)
	if err != nil {
		return 0, storeError("resolve user id", err)
	}
	return id, nil
}
