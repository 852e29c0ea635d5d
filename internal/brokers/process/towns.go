package process

import (
	"context"

	"github.com/Zechen-Wang/covey.town/internal/brokers"
	"github.com/teivah/broadcast"
)

type TownsBroker struct {
	kicks     *broadcast.Relay[brokers.Kick]
	occupancy *broadcast.Relay[brokers.Occupancy]
}

func NewTownsBroker() *TownsBroker {
	return &TownsBroker{
		kicks:     broadcast.NewRelay[brokers.Kick](),
		occupancy: broadcast.NewRelay[brokers.Occupancy](),
	}
}

func (c *TownsBroker) Open(ctx context.Context, brokerURL string) error {
	return nil
}

func (c *TownsBroker) SubscribeToKicks(ctx context.Context, errs chan error) (chan brokers.Kick, func() error) {
	return subscribe(ctx, c.kicks)
}

func (c *TownsBroker) SubscribeToOccupancy(ctx context.Context, errs chan error) (chan brokers.Occupancy, func() error) {
	return subscribe(ctx, c.occupancy)
}

// PublishKick blocks until every subscriber has the kick or ctx is done
func (c *TownsBroker) PublishKick(ctx context.Context, kick brokers.Kick) error {
	c.kicks.NotifyCtx(ctx, kick)

	return ctx.Err()
}

func (c *TownsBroker) PublishOccupancy(ctx context.Context, occupancy brokers.Occupancy) error {
	c.occupancy.NotifyCtx(ctx, occupancy)

	return ctx.Err()
}

func (c *TownsBroker) Close() error {
	c.occupancy.Close()
	c.kicks.Close()

	return nil
}

func subscribe[T any](ctx context.Context, relay *broadcast.Relay[T]) (chan T, func() error) {
	out := make(chan T)

	l := relay.Listener(1)
	raw := l.Ch()

	go func() {
		// Publishers wait on this listener, so it must go away with its reader
		defer l.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					close(out)

					// Relay closed
					return
				}

				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, func() error {
		l.Close()

		return nil
	}
}
