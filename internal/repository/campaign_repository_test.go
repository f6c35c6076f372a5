package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/testutil"
)

func TestCampaignRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLiteDB(t)
	repo := NewCampaignRepository(db.SQL, time.Second)

	first := &model.Campaign{UserID: 7, Description: "spring sale", ImageData: []byte{0x89, 'P', 'N', 'G'}, ImageType: "image/png"}
	require.NoError(t, repo.CreateCampaign(ctx, first))
	assert.NotZero(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	second := &model.Campaign{UserID: 7, Description: "summer", ImageData: []byte("jpeg"), ImageType: "image/jpeg"}
	require.NoError(t, repo.CreateCampaign(ctx, second))
	other := &model.Campaign{UserID: 8, Description: "other", ImageData: []byte("x"), ImageType: "image/gif"}
	require.NoError(t, repo.CreateCampaign(ctx, other))

	got, err := repo.GetCampaign(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Description, got.Description)
	assert.Equal(t, first.ImageData, got.ImageData)
	assert.Equal(t, int64(7), got.UserID)

	list, err := repo.ListCampaignsByUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	empty, err := repo.ListCampaignsByUser(ctx, 404)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = repo.GetCampaign(ctx, 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLiteDB(t)
	repo := NewUserRepository(db.SQL, time.Second)

	id := testutil.SeedUser(t, db, "ana")

	got, err := repo.GetUserIDByUsername(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = repo.GetUserIDByUsername(ctx, "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}
