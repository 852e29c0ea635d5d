package towns

import (
	"testing"

	"github.com/Zechen-Wang/covey.town/internal/authn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNew(t *testing.T) {
	t.Run("rejects empty friendly name", func(t *testing.T) {
		town, secret, err := New("", true, "alice", 0, bcrypt.MinCost)
		assert.ErrorIs(t, err, ErrMissingFriendlyName)
		assert.Nil(t, town)
		assert.Empty(t, secret)
	})

	t.Run("same friendly name yields distinct towns", func(t *testing.T) {
		a, secretA, err := New("Plaza", true, "alice", 0, bcrypt.MinCost)
		require.NoError(t, err)
		b, secretB, err := New("Plaza", true, "alice", 0, bcrypt.MinCost)
		require.NoError(t, err)

		assert.NotEqual(t, a.ID(), b.ID(), "expected distinct IDs")
		assert.NotEqual(t, secretA, secretB, "expected distinct secrets")
		assert.NotEmpty(t, secretA)
	})

	t.Run("defaults capacity", func(t *testing.T) {
		town, _, err := New("Plaza", false, "alice", 0, bcrypt.MinCost)
		require.NoError(t, err)
		assert.Equal(t, DefaultCapacity, town.Capacity())
		assert.Equal(t, "alice", town.Creator())
		assert.False(t, town.IsPubliclyListed())
	})

	t.Run("secret authorizes", func(t *testing.T) {
		town, secret, err := New("Plaza", false, "alice", 5, bcrypt.MinCost)
		require.NoError(t, err)
		assert.True(t, authn.Authorize(town.Credential(), authn.Master{}, secret))
		assert.False(t, authn.Authorize(town.Credential(), authn.Master{}, secret+"x"))
	})
}

func TestRename(t *testing.T) {
	town := Restore("id", "Plaza", true, "alice", 0, nil, nil)

	assert.ErrorIs(t, town.Rename(""), ErrMissingFriendlyName)
	assert.Equal(t, "Plaza", town.FriendlyName(), "expected name to be unchanged")

	assert.NoError(t, town.Rename("Market"))
	assert.Equal(t, "Market", town.FriendlyName())
}

func TestMembershipIsIdempotent(t *testing.T) {
	town := Restore("id", "Plaza", true, "alice", 0, []string{"bob", "bob"}, nil)
	assert.Equal(t, []string{"bob"}, town.Admins(), "expected duplicate persisted admins to collapse")

	assert.True(t, town.AddBlocker("alice"))
	assert.False(t, town.AddBlocker("alice"), "expected duplicate add to be a no-op")
	assert.Equal(t, []string{"alice"}, town.Blockers())
	assert.True(t, town.IsBlocked("alice"))

	assert.False(t, town.RemoveBlocker("carol"), "expected removing an absent user to be a no-op")
	assert.True(t, town.RemoveBlocker("alice"))
	assert.Empty(t, town.Blockers())

	assert.False(t, town.RemoveAdmin("carol"))
	assert.True(t, town.RemoveAdmin("bob"))
	assert.True(t, town.AddAdmin("carol"))
	assert.Equal(t, []string{"carol"}, town.Admins())
}

func TestOccupancy(t *testing.T) {
	town := Restore("id", "Plaza", true, "alice", 2, nil, nil)

	town.DecrementOccupancy()
	assert.Equal(t, 0, town.Occupancy(), "expected occupancy to clamp at zero")

	town.IncrementOccupancy()
	assert.False(t, town.Full())
	town.IncrementOccupancy()
	assert.True(t, town.Full())

	town.DecrementOccupancy()
	town.DecrementOccupancy()
	town.DecrementOccupancy()
	assert.Equal(t, 0, town.Occupancy())
}

func TestRestoredTownOnlyUnlocksWithMaster(t *testing.T) {
	town := Restore("id", "Plaza", true, "alice", 0, nil, nil)

	assert.False(t, authn.Authorize(town.Credential(), authn.NewMaster(""), ""))
	assert.False(t, authn.Authorize(town.Credential(), authn.NewMaster(""), "anything"))
	assert.True(t, authn.Authorize(town.Credential(), authn.NewMaster("root"), "root"))
}

func TestUsernamesSorted(t *testing.T) {
	u := NewUsernames("carol", "alice", "bob")
	assert.Equal(t, []string{"alice", "bob", "carol"}, u.Sorted())
	assert.True(t, u.Has("bob"))
	assert.False(t, u.Has("dave"))
}
