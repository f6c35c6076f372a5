package model

import "time"

// Referral is the deterministic referral code issued for a (campaign, user) pair.
type Referral struct {
	CampaignID int64     `db:"campaign_id" json:"campaign_id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	Code       string    `db:"code" json:"code"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// QRCode binds a random scan token to a (user, campaign) pair.
// Hits and Referrals only ever grow, and always by the same amount.
type QRCode struct {
	UserID     int64     `db:"user_id" json:"user_id"`
	CampaignID int64     `db:"campaign_id" json:"campaign_id"`
	Token      string    `db:"qr_token" json:"qr_token"`
	Hits       int64     `db:"hits" json:"hits"`
	Referrals  int64     `db:"referrals" json:"referrals"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Counters is the read projection of a QRCode row.
type Counters struct {
	Hits      int64 `db:"hits" json:"hits"`
	Referrals int64 `db:"referrals" json:"referrals"`
}
