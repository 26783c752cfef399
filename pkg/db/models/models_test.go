package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeforeCreateAssignsMissingIDs(t *testing.T) {
	order := &Order{}
	require.NoError(t, order.BeforeCreate(nil))
	assert.NotEqual(t, uuid.Nil, order.ID)

	fixed := uuid.New()
	server := &Server{ID: fixed}
	require.NoError(t, server.BeforeCreate(nil))
	assert.Equal(t, fixed, server.ID)
}
