package service

import (
	"context"
	"sync"

	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/repository"
)

type pair struct{ user, campaign int64 }

// fakeStore is an in-memory attribution store. A single mutex stands in for
// the database's per-statement atomicity.
type fakeStore struct {
	mu        sync.Mutex
	referrals map[pair]string
	tokens    map[pair]string
	counters  map[string]*model.Counters
	calls     int
	err       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		referrals: map[pair]string{},
		tokens:    map[pair]string{},
		counters:  map[string]*model.Counters{},
	}
}

func (f *fakeStore) UpsertReferral(_ context.Context, campaignID, userID int64, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	k := pair{userID, campaignID}
	if _, ok := f.referrals[k]; ok {
		return false, nil
	}
	f.referrals[k] = code
	return true, nil
}

func (f *fakeStore) FindOrCreateToken(_ context.Context, userID, campaignID int64, generate func() (string, error)) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	k := pair{userID, campaignID}
	if tok, ok := f.tokens[k]; ok {
		return tok, nil
	}
	tok, err := generate()
	if err != nil {
		return "", err
	}
	if _, taken := f.counters[tok]; taken {
		return "", repository.ErrTokenConflict
	}
	f.tokens[k] = tok
	f.counters[tok] = &model.Counters{}
	return tok, nil
}

func (f *fakeStore) IncrementCounters(_ context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	c, ok := f.counters[token]
	if !ok {
		return false, nil
	}
	c.Hits++
	c.Referrals++
	return true, nil
}

func (f *fakeStore) GetCounters(_ context.Context, userID, campaignID int64) (*model.Counters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	tok, ok := f.tokens[pair{userID, campaignID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *f.counters[tok]
	return &c, nil
}

func (f *fakeStore) GetReferralCount(ctx context.Context, userID, campaignID int64) (int64, error) {
	c, err := f.GetCounters(ctx, userID, campaignID)
	if err != nil {
		return 0, err
	}
	return c.Referrals, nil
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
