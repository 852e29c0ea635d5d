package brokers

import "context"

// Kick asks every process holding connections to a town to drop them. A
// non-empty Username limits the kick to that user's connections.
type Kick struct {
	Town     string `json:"town"`
	Username string `json:"username,omitempty"`
}

// Occupancy announces a town's current occupancy after a join or leave
type Occupancy struct {
	Town    string `json:"town"`
	Current int    `json:"current"`
	Maximum int    `json:"maximum"`
}

type TownsBroker interface {
	Open(ctx context.Context, brokerURL string) error
	SubscribeToKicks(ctx context.Context, errs chan error) (kicks chan Kick, close func() error)
	SubscribeToOccupancy(ctx context.Context, errs chan error) (occupancy chan Occupancy, close func() error)
	PublishKick(ctx context.Context, kick Kick) error
	PublishOccupancy(ctx context.Context, occupancy Occupancy) error
	Close() error
}
