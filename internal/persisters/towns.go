package persisters

import (
	"context"
	"errors"
)

var (
	ErrNoSuchTown = errors.New("no such town")
)

// Town is the persisted form of a town. Secrets are never persisted.
type Town struct {
	ID               string   `json:"coveyTownID"`
	FriendlyName     string   `json:"friendlyName"`
	IsPubliclyListed bool     `json:"isPubliclyListed"`
	Creator          string   `json:"creator"`
	Admins           []string `json:"admins"`
	Blockers         []string `json:"blockers"`
	MaxOccupancy     int      `json:"maxOccupancy"`

	// Users mirrors the usernames of live sessions, one entry per session
	Users []string `json:"users,omitempty"`
}

// TownsPersister mirrors the live registry for durability across restarts
type TownsPersister interface {
	Open(ctx context.Context, dbURL string) error
	ListTowns(ctx context.Context) ([]Town, error)
	CreateTown(ctx context.Context, town Town) error
	UpdateListing(ctx context.Context, id string, friendlyName string, isPubliclyListed bool) error
	UpdateAdmins(ctx context.Context, id string, admins []string) error
	UpdateBlockers(ctx context.Context, id string, blockers []string) error
	UpdateUsers(ctx context.Context, id string, users []string) error
	DeleteTown(ctx context.Context, id string) error
	Close() error
}
