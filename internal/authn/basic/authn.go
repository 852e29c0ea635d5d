package basic

import (
	"context"

	"github.com/Zechen-Wang/covey.town/internal/authn"
)

// Authn accepts any username together with the master secret
type Authn struct {
	master authn.Master
}

func NewAuthn(master authn.Master) *Authn {
	return &Authn{
		master: master,
	}
}

func (a *Authn) Open(ctx context.Context) error {
	return nil
}

func (a *Authn) Validate(_, token string) error {
	if !authn.Authorize(authn.Credential{}, a.master, token) {
		return authn.ErrWrongPassword
	}

	return nil
}
