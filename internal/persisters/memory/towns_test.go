package memory

import (
	"context"
	"testing"

	"github.com/Zechen-Wang/covey.town/internal/persisters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTownsPersister(t *testing.T) {
	ctx := context.Background()
	p := NewTownsPersister()
	require.NoError(t, p.Open(ctx, ""))

	town := persisters.Town{
		ID:               "abc",
		FriendlyName:     "Plaza",
		IsPubliclyListed: true,
		Creator:          "alice",
		MaxOccupancy:     10,
	}
	require.NoError(t, p.CreateTown(ctx, town))
	assert.ErrorIs(t, p.CreateTown(ctx, town), ErrUniqueConstraintViolation)

	require.NoError(t, p.UpdateAdmins(ctx, "abc", []string{"bob"}))
	require.NoError(t, p.UpdateBlockers(ctx, "abc", []string{"carol", "dave"}))
	require.NoError(t, p.UpdateListing(ctx, "abc", "Market", false))
	require.NoError(t, p.UpdateUsers(ctx, "abc", []string{"alice", "alice", "erin"}))

	tt, err := p.ListTowns(ctx)
	require.NoError(t, err)
	require.Len(t, tt, 1)
	assert.Equal(t, persisters.Town{
		ID:               "abc",
		FriendlyName:     "Market",
		IsPubliclyListed: false,
		Creator:          "alice",
		Admins:           []string{"bob"},
		Blockers:         []string{"carol", "dave"},
		MaxOccupancy:     10,
		Users:            []string{"alice", "alice", "erin"},
	}, tt[0])

	// Listed records are copies
	tt[0].Admins[0] = "mallory"
	again, err := p.ListTowns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, again[0].Admins)

	require.NoError(t, p.DeleteTown(ctx, "abc"))
	assert.ErrorIs(t, p.DeleteTown(ctx, "abc"), persisters.ErrNoSuchTown)
	assert.ErrorIs(t, p.UpdateAdmins(ctx, "abc", nil), persisters.ErrNoSuchTown)
	assert.ErrorIs(t, p.UpdateBlockers(ctx, "abc", nil), persisters.ErrNoSuchTown)
	assert.ErrorIs(t, p.UpdateListing(ctx, "abc", "x", true), persisters.ErrNoSuchTown)
	assert.ErrorIs(t, p.UpdateUsers(ctx, "abc", nil), persisters.ErrNoSuchTown)

	tt, err = p.ListTowns(ctx)
	require.NoError(t, err)
	assert.Empty(t, tt)
	assert.NoError(t, p.Close())
}
