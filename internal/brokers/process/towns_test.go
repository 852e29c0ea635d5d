package process

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Zechen-Wang/covey.town/internal/brokers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTownsBroker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewTownsBroker()
	require.NoError(t, b.Open(ctx, ""))

	errs := make(chan error)
	kicks, closeKicks := b.SubscribeToKicks(ctx, errs)
	defer closeKicks()

	occupancy, closeOccupancy := b.SubscribeToOccupancy(ctx, errs)
	defer closeOccupancy()

	go func() {
		_ = b.PublishKick(ctx, brokers.Kick{Town: "abc"})
	}()

	select {
	case kick := <-kicks:
		assert.Equal(t, "abc", kick.Town)
	case <-time.After(time.Second):
		t.Fatal("timeout: kick was not delivered")
	}

	go func() {
		_ = b.PublishOccupancy(ctx, brokers.Occupancy{Town: "abc", Current: 2, Maximum: 10})
	}()

	select {
	case o := <-occupancy:
		assert.Equal(t, brokers.Occupancy{Town: "abc", Current: 2, Maximum: 10}, o)
	case <-time.After(time.Second):
		t.Fatal("timeout: occupancy was not delivered")
	}
}

func TestTownsBrokerDeliversBursts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewTownsBroker()
	require.NoError(t, b.Open(ctx, ""))
	defer b.Close()

	kicks, closeKicks := b.SubscribeToKicks(ctx, make(chan error))
	defer closeKicks()

	const count = 25

	published := make(chan error, 1)
	go func() {
		for i := 0; i < count; i++ {
			publishCtx, cancelPublish := context.WithTimeout(ctx, time.Second*5)
			err := b.PublishKick(publishCtx, brokers.Kick{Town: fmt.Sprintf("town-%02d", i)})
			cancelPublish()

			if err != nil {
				published <- err

				return
			}
		}

		published <- nil
	}()

	for i := 0; i < count; i++ {
		select {
		case kick := <-kicks:
			assert.Equal(t, fmt.Sprintf("town-%02d", i), kick.Town)
		case <-time.After(time.Second * 5):
			t.Fatalf("timeout: received %v of %v kicks", i, count)
		}
	}

	assert.NoError(t, <-published)
}

func TestTownsBrokerPublishGivesUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewTownsBroker()
	defer b.Close()

	// Subscribed but never read
	_, closeKicks := b.SubscribeToKicks(ctx, make(chan error))
	defer closeKicks()

	publishCtx, cancelPublish := context.WithTimeout(ctx, time.Millisecond*50)
	defer cancelPublish()

	var err error
	for i := 0; i < 3; i++ {
		err = b.PublishKick(publishCtx, brokers.Kick{Town: "abc"})
	}

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
