package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertGoogleUser(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	t.Run("creates then updates by google sub", func(t *testing.T) {
		created, err := db.UpsertGoogleUser(ctx, "sub-1", "a@example.com", "Alice", "https://pic/a")
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, "Alice", created.Name)

		updated, err := db.UpsertGoogleUser(ctx, "sub-1", "alice@example.com", "Alice B", "")
		require.NoError(t, err)
		assert.Equal(t, created.ID, updated.ID)
		assert.Equal(t, "alice@example.com", updated.Email)
		assert.Equal(t, "Alice B", updated.Name)
		assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
	})

	t.Run("lookups", func(t *testing.T) {
		user := createTestUser(t, db)

		byID, err := db.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, byID)
		assert.Equal(t, user.GoogleSub, byID.GoogleSub)

		bySub, err := db.GetUserByGoogleSub(ctx, user.GoogleSub)
		require.NoError(t, err)
		require.NotNil(t, bySub)
		assert.Equal(t, user.ID, bySub.ID)

		byEmail, err := db.GetUserByEmail(ctx, user.Email)
		require.NoError(t, err)
		require.NotNil(t, byEmail)
		assert.Equal(t, user.ID, byEmail.ID)
	})

	t.Run("missing user returns nil", func(t *testing.T) {
		u, err := db.GetUserByID(ctx, 999999)
		require.NoError(t, err)
		assert.Nil(t, u)

		u, err = db.GetUserByGoogleSub(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, u)
	})
}
