package authority

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

var (
	errOutboxClosed = errors.New("outbox is closed")
)

type job struct {
	op  string
	run func(ctx context.Context) error
}

type queue struct {
	jobs []job
}

// outbox delivers one-way messages in the background. Jobs for the same town
// run in the order they were queued; jobs for different towns run
// concurrently, bounded by the semaphore. Failed jobs are logged and dropped.
type outbox struct {
	name    string
	ctx     context.Context
	timeout time.Duration
	sem     *semaphore.Weighted
	onError func(town, op string, err error)

	lock   sync.Mutex
	idle   *sync.Cond
	queues map[string]*queue
	closed bool
}

func newOutbox(
	name string,
	concurrency int64,
	timeout time.Duration,
	onError func(town, op string, err error),
	ctx context.Context,
) *outbox {
	o := &outbox{
		name:    name,
		ctx:     ctx,
		timeout: timeout,
		sem:     semaphore.NewWeighted(concurrency),
		onError: onError,

		queues: map[string]*queue{},
	}
	o.idle = sync.NewCond(&o.lock)

	return o
}

// enqueue never blocks on delivery. Jobs queued after close are dropped.
func (o *outbox) enqueue(town, op string, run func(ctx context.Context) error) {
	o.lock.Lock()
	if o.closed {
		o.lock.Unlock()

		o.fail(town, op, errOutboxClosed)

		return
	}
	defer o.lock.Unlock()

	q, ok := o.queues[town]
	if !ok {
		q = &queue{}
		o.queues[town] = q

		go o.drain(town, q)
	}

	q.jobs = append(q.jobs, job{op, run})
}

func (o *outbox) drain(town string, q *queue) {
	for {
		o.lock.Lock()
		if len(q.jobs) == 0 {
			delete(o.queues, town)
			if len(o.queues) == 0 {
				o.idle.Broadcast()
			}
			o.lock.Unlock()

			return
		}

		j := q.jobs[0]
		q.jobs[0] = job{}
		q.jobs = q.jobs[1:]
		o.lock.Unlock()

		o.deliver(town, j)
	}
}

func (o *outbox) deliver(town string, j job) {
	if err := o.sem.Acquire(o.ctx, 1); err != nil {
		o.fail(town, j.op, err)

		return
	}
	defer o.sem.Release(1)

	ctx, cancel := context.WithTimeout(o.ctx, o.timeout)
	defer cancel()

	if err := j.run(ctx); err != nil {
		o.fail(town, j.op, err)

		return
	}

	log.Trace().
		Str("outbox", o.name).
		Str("town", town).
		Str("op", j.op).
		Msg("Delivered")
}

func (o *outbox) fail(town, op string, err error) {
	log.Warn().
		Err(err).
		Str("outbox", o.name).
		Str("town", town).
		Str("op", op).
		Msg("Could not deliver, dropping")

	if o.onError != nil {
		o.onError(town, op, err)
	}
}

// wait blocks until no queue has pending jobs. Jobs may be queued concurrently.
func (o *outbox) wait() {
	o.lock.Lock()
	defer o.lock.Unlock()

	for len(o.queues) > 0 {
		o.idle.Wait()
	}
}

// close refuses new jobs and waits for the queued ones
func (o *outbox) close() {
	o.lock.Lock()
	o.closed = true
	o.lock.Unlock()

	o.wait()
}
