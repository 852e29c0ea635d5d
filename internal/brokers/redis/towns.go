package redis

import (
	"context"

	"github.com/Zechen-Wang/covey.town/internal/brokers"
	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"
)

const (
	topicKick      = "covey.kick"
	topicOccupancy = "covey.occupancy"
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

type TownsBroker struct {
	client *redis.Client
}

func NewTownsBroker() *TownsBroker {
	return &TownsBroker{}
}

func (c *TownsBroker) Open(ctx context.Context, brokerURL string) error {
	u, err := redis.ParseURL(brokerURL)
	if err != nil {
		return err
	}

	c.client = redis.NewClient(u).WithContext(ctx)

	return c.client.Ping(ctx).Err()
}

func (c *TownsBroker) SubscribeToKicks(ctx context.Context, errs chan error) (chan brokers.Kick, func() error) {
	return subscribe[brokers.Kick](ctx, c.client, topicKick, errs)
}

func (c *TownsBroker) SubscribeToOccupancy(ctx context.Context, errs chan error) (chan brokers.Occupancy, func() error) {
	return subscribe[brokers.Occupancy](ctx, c.client, topicOccupancy, errs)
}

func (c *TownsBroker) PublishKick(ctx context.Context, kick brokers.Kick) error {
	return publish(ctx, c.client, topicKick, kick)
}

func (c *TownsBroker) PublishOccupancy(ctx context.Context, occupancy brokers.Occupancy) error {
	return publish(ctx, c.client, topicOccupancy, occupancy)
}

func (c *TownsBroker) Close() error {
	return c.client.Close()
}

func publish(ctx context.Context, client *redis.Client, topic string, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return client.Publish(ctx, topic, data).Err()
}

func subscribe[T any](ctx context.Context, client *redis.Client, topic string, errs chan error) (chan T, func() error) {
	out := make(chan T)

	pubsub := client.Subscribe(ctx, topic)
	raw := pubsub.Channel()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case rawMsg := <-raw:
				if rawMsg == nil {
					close(out)

					// Channel closed
					return
				}

				var msg T
				if err := json.Unmarshal([]byte(rawMsg.Payload), &msg); err != nil {
					errs <- err

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

	return out, pubsub.Close
}
