package authn

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrWrongPassword = errors.New("wrong password")
)

// Authn validates callers of the management API
type Authn interface {
	Open(context.Context) error
	Validate(username, token string) error
}

// Credential is the stored form of a town's update/delete secret. The zero
// value never matches.
type Credential struct {
	hash []byte
}

func NewCredential(secret string, cost int) (Credential, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return Credential{}, err
	}

	return Credential{hash}, nil
}

func (c Credential) IsZero() bool {
	return len(c.hash) == 0
}

func (c Credential) matches(provided string) bool {
	if c.IsZero() {
		return false
	}

	return bcrypt.CompareHashAndPassword(c.hash, []byte(provided)) == nil
}

// Master is the process-wide override secret. A blank secret disables it.
type Master struct {
	secret []byte
}

func NewMaster(secret string) Master {
	if strings.TrimSpace(secret) == "" {
		return Master{}
	}

	return Master{[]byte(secret)}
}

func (m Master) Enabled() bool {
	return len(m.secret) > 0
}

func (m Master) matches(provided string) bool {
	if !m.Enabled() {
		return false
	}

	return subtle.ConstantTimeCompare(m.secret, []byte(provided)) == 1
}

// Authorize reports whether provided unlocks a town holding stored, either
// directly or through the master override.
func Authorize(stored Credential, master Master, provided string) bool {
	if provided == "" {
		return false
	}

	// Evaluate both so timing does not reveal which one matched
	own := stored.matches(provided)
	override := master.matches(provided)

	return own || override
}
