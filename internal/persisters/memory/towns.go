package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/Zechen-Wang/covey.town/internal/persisters"
)

var (
	ErrUniqueConstraintViolation = errors.New("unique constraint violation")
)

type TownsPersister struct {
	lock  sync.Mutex
	towns []*persisters.Town
}

func NewTownsPersister() *TownsPersister {
	return &TownsPersister{
		towns: []*persisters.Town{},
	}
}

func (p *TownsPersister) Open(ctx context.Context, dbURL string) error {
	return nil
}

func (p *TownsPersister) find(id string) *persisters.Town {
	for _, candidate := range p.towns {
		if candidate.ID == id {
			return candidate
		}
	}

	return nil
}

func (p *TownsPersister) ListTowns(ctx context.Context) ([]persisters.Town, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	tt := []persisters.Town{}
	for _, town := range p.towns {
		tt = append(tt, clone(*town))
	}

	return tt, nil
}

func (p *TownsPersister) CreateTown(ctx context.Context, town persisters.Town) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.find(town.ID) != nil {
		return ErrUniqueConstraintViolation
	}

	t := clone(town)
	p.towns = append(p.towns, &t)

	return nil
}

func (p *TownsPersister) UpdateListing(ctx context.Context, id string, friendlyName string, isPubliclyListed bool) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	t := p.find(id)
	if t == nil {
		return persisters.ErrNoSuchTown
	}

	t.FriendlyName = friendlyName
	t.IsPubliclyListed = isPubliclyListed

	return nil
}

func (p *TownsPersister) UpdateAdmins(ctx context.Context, id string, admins []string) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	t := p.find(id)
	if t == nil {
		return persisters.ErrNoSuchTown
	}

	t.Admins = append([]string{}, admins...)

	return nil
}

func (p *TownsPersister) UpdateBlockers(ctx context.Context, id string, blockers []string) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	t := p.find(id)
	if t == nil {
		return persisters.ErrNoSuchTown
	}

	t.Blockers = append([]string{}, blockers...)

	return nil
}

func (p *TownsPersister) UpdateUsers(ctx context.Context, id string, users []string) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	t := p.find(id)
	if t == nil {
		return persisters.ErrNoSuchTown
	}

	t.Users = append([]string{}, users...)

	return nil
}

func (p *TownsPersister) DeleteTown(ctx context.Context, id string) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	newTowns := []*persisters.Town{}
	n := 0
	for _, candidate := range p.towns {
		if candidate.ID != id {
			newTowns = append(newTowns, candidate)

			continue
		}

		n++
	}

	p.towns = newTowns

	if n <= 0 {
		return persisters.ErrNoSuchTown
	}

	return nil
}

func (p *TownsPersister) Close() error {
	return nil
}

func clone(t persisters.Town) persisters.Town {
	t.Admins = append([]string{}, t.Admins...)
	t.Blockers = append([]string{}, t.Blockers...)
	if t.Users != nil {
		t.Users = append([]string{}, t.Users...)
	}

	return t
}
