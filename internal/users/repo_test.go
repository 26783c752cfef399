package users

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/pkg/db/dbtest"
)

func TestRepositoryLookups(t *testing.T) {
	conn := dbtest.Open(t)
	seeded := dbtest.SeedUser(t, conn, "Ana@Example.com", "Ana Lopez")
	repo := NewRepository(conn)
	ctx := context.Background()

	byID, err := repo.FindByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Lopez", byID.FullName)

	byEmail, err := repo.FindByEmail(ctx, " ana@example.com ")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, byEmail.ID)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}
