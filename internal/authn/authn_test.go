package authn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAuthorize(t *testing.T) {
	stored, err := NewCredential("town-secret", bcrypt.MinCost)
	require.NoError(t, err)

	tcases := []struct {
		name     string
		stored   Credential
		master   Master
		provided string
		want     bool
	}{
		{
			name:     "own secret",
			stored:   stored,
			master:   NewMaster(""),
			provided: "town-secret",
			want:     true,
		},
		{
			name:     "wrong secret",
			stored:   stored,
			master:   NewMaster(""),
			provided: "nope",
			want:     false,
		},
		{
			name:     "master override",
			stored:   stored,
			master:   NewMaster("master"),
			provided: "master",
			want:     true,
		},
		{
			name:     "master override on restored town",
			stored:   Credential{},
			master:   NewMaster("master"),
			provided: "master",
			want:     true,
		},
		{
			name:     "restored town without master",
			stored:   Credential{},
			master:   NewMaster(""),
			provided: "town-secret",
			want:     false,
		},
		{
			name:     "blank master never matches empty secret",
			stored:   Credential{},
			master:   NewMaster("   "),
			provided: "",
			want:     false,
		},
		{
			name:     "empty secret with master set",
			stored:   stored,
			master:   NewMaster("master"),
			provided: "",
			want:     false,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Authorize(tc.stored, tc.master, tc.provided))
		})
	}
}

func TestNewMaster(t *testing.T) {
	assert.False(t, NewMaster("").Enabled(), "expected empty master to be disabled")
	assert.False(t, NewMaster(" \t").Enabled(), "expected blank master to be disabled")
	assert.True(t, NewMaster("s3cret").Enabled(), "expected master to be enabled")
}

func TestCredentialIsZero(t *testing.T) {
	assert.True(t, Credential{}.IsZero())

	c, err := NewCredential("x", bcrypt.MinCost)
	require.NoError(t, err)
	assert.False(t, c.IsZero())
}
