package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kkkkikiki/referral/internal/model"
)

// CampaignRepository handles campaign data operations
type CampaignRepository struct {
	db      DBExecutor
	timeout time.Duration
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db DBExecutor, timeout time.Duration) *CampaignRepository {
	return &CampaignRepository{db: db, timeout: timeout}
}

// CreateCampaign creates a new campaign and fills in its ID and CreatedAt.
func (r *CampaignRepository) CreateCampaign(ctx context.Context, campaign *model.Campaign) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		INSERT INTO campaigns (user_id, description, image_data, image_type, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`)

	campaign.CreatedAt = time.Now().UTC()

	err := r.db.GetContext(ctx, &campaign.ID, query,
		campaign.UserID, campaign.Description, campaign.ImageData, campaign.ImageType, campaign.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", classify(err))
	}

	return nil
}

// GetCampaign retrieves a campaign by ID
func (r *CampaignRepository) GetCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT id, user_id, description, image_data, image_type, created_at
		FROM campaigns
		WHERE id = ?
	`)

	var campaign model.Campaign
	if err := r.db.GetContext(ctx, &campaign, query, id); err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", classify(err))
	}

	return &campaign, nil
}

// ListCampaignsByUser retrieves every campaign owned by userID, oldest first.
func (r *CampaignRepository) ListCampaignsByUser(ctx context.Context, userID int64) ([]model.Campaign, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT id, user_id, description, image_data, image_type, created_at
		FROM campaigns
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
	`)

	campaigns := []model.Campaign{}
	if err := r.db.SelectContext(ctx, &campaigns, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", classify(err))
	}

	return campaigns, nil
}
