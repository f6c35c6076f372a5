package service

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kkkkikiki/referral/internal/metrics"
)

// ReferralStore persists referral rows.
type ReferralStore interface {
	UpsertReferral(ctx context.Context, campaignID, userID int64, code string) (bool, error)
}

// ReferralIssuer derives and persists referral codes. The code is a pure
// function of the pair, so issuing twice can never produce two codes.
type ReferralIssuer struct {
	store   ReferralStore
	baseURL string
}

// NewReferralIssuer creates an issuer whose share URLs start with baseURL.
func NewReferralIssuer(store ReferralStore, baseURL string) *ReferralIssuer {
	return &ReferralIssuer{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// ReferralCode returns "<campaignID>_<userID>".
func ReferralCode(campaignID, userID int64) string {
	return strconv.FormatInt(campaignID, 10) + "_" + strconv.FormatInt(userID, 10)
}

// Issue persists the pair's referral code and returns it. A row that already
// exists is left untouched and the same code is returned.
func (s *ReferralIssuer) Issue(ctx context.Context, campaignID, userID int64) (string, error) {
	start := time.Now()
	status := metrics.StatusFailed
	defer func() {
		metrics.RecordIssue("referral", status, time.Since(start).Seconds())
	}()

	if err := validatePair(userID, campaignID); err != nil {
		status = metrics.StatusInvalid
		return "", err
	}

	code := ReferralCode(campaignID, userID)
	created, err := s.store.UpsertReferral(ctx, campaignID, userID, code)
	if err != nil {
		return "", storeError("upsert referral", err)
	}
	if created {
		metrics.RecordCreated("referral")
	}

	status = metrics.StatusSuccess
	return code, nil
}

// URL builds the shareable link for code.
func (s *ReferralIssuer) URL(code string) string {
	return s.baseURL + "/scan?" + url.Values{"ref": []string{code}}.Encode()
}

func validatePair(userID, campaignID int64) error {
	if userID <= 0 {
		return validationf("user id must be a positive integer")
	}
	if campaignID <= 0 {
		return validationf("campaign id must be a positive integer")
	}
	return nil
}
