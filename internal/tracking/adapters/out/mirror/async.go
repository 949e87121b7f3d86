// Package mirror decouples broker publishing from the ingest path.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"fastfare/internal/shared/logger"
	out "fastfare/internal/tracking/application/ports/out"
	"fastfare/internal/tracking/domain"
)

const publishTimeout = 5 * time.Second

var ErrClosed = errors.New("mirror closed")

type job struct {
	pos      *domain.DriverPosition
	driverID string
	status   json.RawMessage
}

// Async queues mirror calls for a single background worker. When the
// queue is full the oldest queued job is discarded, so a slow broker
// costs stale updates, never ingest latency.
type Async struct {
	next  out.PositionMirror
	log   *logger.Logger
	queue chan job

	mu      sync.Mutex
	closed  bool
	dropped int64

	done chan struct{}
}

var _ out.PositionMirror = (*Async)(nil)

// NewAsync starts the worker. Close stops it after draining the queue.
func NewAsync(next out.PositionMirror, buffer int, log *logger.Logger) *Async {
	if buffer <= 0 {
		buffer = 1
	}
	a := &Async{
		next:  next,
		log:   log,
		queue: make(chan job, buffer),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) PublishPosition(_ context.Context, pos domain.DriverPosition) error {
	return a.enqueue(job{pos: &pos})
}

func (a *Async) PublishDriverStatus(_ context.Context, driverID string, payload json.RawMessage) error {
	return a.enqueue(job{driverID: driverID, status: payload})
}

// Dropped returns how many queued jobs were discarded for newer ones.
func (a *Async) Dropped() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

func (a *Async) enqueue(j job) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	for {
		select {
		case a.queue <- j:
			return nil
		default:
		}
		select {
		case <-a.queue:
			a.dropped++
		default:
		}
	}
}

func (a *Async) run() {
	defer close(a.done)
	for j := range a.queue {
		a.publish(j)
	}
}

func (a *Async) publish(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	var (
		err      error
		driverID = j.driverID
	)
	if j.pos != nil {
		driverID = j.pos.DriverID
		err = a.next.PublishPosition(ctx, *j.pos)
	} else {
		err = a.next.PublishDriverStatus(ctx, j.driverID, j.status)
	}
	if err != nil {
		a.log.Warn(logger.Entry{
			Action:   "mirror_publish_failed",
			Message:  err.Error(),
			DriverID: driverID,
			Error:    &logger.ErrObj{Msg: err.Error()},
		})
	}
}

// Close stops accepting jobs and waits for the queue to drain or ctx to
// expire.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
