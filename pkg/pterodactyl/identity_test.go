package pterodactyl

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsername(t *testing.T) {
	assert.Equal(t, "johndoe42", Username("John.Doe+42@example.com"))
	assert.Equal(t, "ana", Username("ana"))
	assert.Equal(t, "jos", Username("josé@example.com"))
}

func TestSplitName(t *testing.T) {
	first, last := SplitName("Ana Maria Lopez")
	assert.Equal(t, "Ana", first)
	assert.Equal(t, "Maria Lopez", last)

	first, last = SplitName("Cher")
	assert.Equal(t, "Cher", first)
	assert.Equal(t, "Cher", last)
}

func TestMockIsStableForIdentity(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	id1, err := m.EnsureIdentity(ctx, NewIdentityRequest("ana.l@example.com", "Ana"))
	require.NoError(t, err)
	id2, err := m.EnsureIdentity(ctx, NewIdentityRequest("ANA.L@example.com", "Ana"))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	alloc, err := m.Allocate(ctx, AllocateRequest{IdentityID: id1, Name: "srv"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(alloc.Identifier, "mock-anal-"))
	assert.Equal(t, MockIP, *alloc.IP)
	assert.Equal(t, MockPort, *alloc.Port)
	assert.Positive(t, alloc.ServerID)
}
