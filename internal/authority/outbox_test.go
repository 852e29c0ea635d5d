package authority

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOutboxPreservesPerTownOrder(t *testing.T) {
	o := newOutbox("test", 4, time.Second, nil, context.Background())

	var (
		lock sync.Mutex
		got  = map[string][]int{}
	)

	for i := 0; i < 20; i++ {
		for _, town := range []string{"a", "b", "c"} {
			i, town := i, town

			o.enqueue(town, "append", func(ctx context.Context) error {
				lock.Lock()
				defer lock.Unlock()

				got[town] = append(got[town], i)

				return nil
			})
		}
	}

	o.wait()

	for _, town := range []string{"a", "b", "c"} {
		assert.Len(t, got[town], 20)
		assert.IsIncreasing(t, got[town])
	}
}

func TestOutboxDropsFailures(t *testing.T) {
	errBoom := errors.New("boom")

	var (
		lock   sync.Mutex
		failed []string
		ran    []string
	)
	o := newOutbox("test", 1, time.Second, func(town, op string, err error) {
		lock.Lock()
		defer lock.Unlock()

		assert.ErrorIs(t, err, errBoom)
		failed = append(failed, op)
	}, context.Background())

	record := func(op string, err error) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			lock.Lock()
			defer lock.Unlock()

			ran = append(ran, op)

			return err
		}
	}

	o.enqueue("a", "first", record("first", errBoom))
	o.enqueue("a", "second", record("second", nil))
	o.wait()

	assert.Equal(t, []string{"first", "second"}, ran)
	assert.Equal(t, []string{"first"}, failed)
}

func TestOutboxTimesOutSlowJobs(t *testing.T) {
	var (
		lock sync.Mutex
		errs []error
	)
	o := newOutbox("test", 1, time.Millisecond*10, func(town, op string, err error) {
		lock.Lock()
		defer lock.Unlock()

		errs = append(errs, err)
	}, context.Background())

	o.enqueue("a", "slow", func(ctx context.Context) error {
		<-ctx.Done()

		return ctx.Err()
	})
	o.wait()

	lock.Lock()
	defer lock.Unlock()

	if assert.Len(t, errs, 1) {
		assert.ErrorIs(t, errs[0], context.DeadlineExceeded)
	}
}

func TestOutboxWaitsWhileJobsArrive(t *testing.T) {
	o := newOutbox("test", 4, time.Second, nil, context.Background())

	var (
		lock      sync.Mutex
		delivered int
	)

	const jobs = 200

	var wg sync.WaitGroup
	for _, town := range []string{"a", "b", "c", "d"} {
		wg.Add(1)

		go func(town string) {
			defer wg.Done()

			for i := 0; i < jobs; i++ {
				o.enqueue(town, "count", func(ctx context.Context) error {
					lock.Lock()
					defer lock.Unlock()

					delivered++

					return nil
				})

				if i%10 == 0 {
					o.wait()
				}
			}
		}(town)
	}
	wg.Wait()
	o.wait()

	lock.Lock()
	defer lock.Unlock()

	assert.Equal(t, jobs*4, delivered)
}

func TestOutboxDropsJobsAfterClose(t *testing.T) {
	var (
		lock   sync.Mutex
		failed []error
	)
	o := newOutbox("test", 1, time.Second, func(town, op string, err error) {
		lock.Lock()
		defer lock.Unlock()

		failed = append(failed, err)
	}, context.Background())

	ran := make(chan struct{}, 2)
	run := func(ctx context.Context) error {
		ran <- struct{}{}

		return nil
	}

	o.enqueue("a", "before", run)
	o.close()
	o.enqueue("a", "after", run)
	o.wait()

	assert.Len(t, ran, 1)

	lock.Lock()
	defer lock.Unlock()

	if assert.Len(t, failed, 1) {
		assert.ErrorIs(t, failed[0], errOutboxClosed)
	}
}
