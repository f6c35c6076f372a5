package service

import (
	"context"
	"strings"

	"github.com/kkkkikiki/referral/internal/model"
)

// CampaignWriter stores new campaigns.
type CampaignWriter interface {
	CreateCampaign(ctx context.Context, campaign *model.Campaign) error
}

// CampaignService creates campaigns. There is no update or delete path.
type CampaignService struct {
	store CampaignWriter
}

// NewCampaignService creates a new CampaignService
func NewCampaignService(store CampaignWriter) *CampaignService {
	return &CampaignService{store: store}
}

// CreateCampaign validates and stores campaign, filling in its ID.
func (s *CampaignService) CreateCampaign(ctx context.Context, campaign *model.Campaign) error {
	campaign.Description = strings.TrimSpace(campaign.Description)
	switch {
	case campaign.UserID <= 0:
		return validationf("user id must be a positive integer")
	case campaign.Description == "":
		return validationf("description is required")
	case len(campaign.ImageData) == 0:
		return validationf("image is required")
	case !strings.HasPrefix(campaign.ImageType, "image/"):
		return validationf("unsupported image type %q", campaign.ImageType)
	}

	if err := s.store.CreateCampaign(ctx, campaign); err != nil {
		return storeError("create campaign", err)
	}
	return nil
}
