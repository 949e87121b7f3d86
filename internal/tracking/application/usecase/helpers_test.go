package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"fastfare/internal/tracking/domain"
)

type recorder struct {
	id string

	mu     sync.Mutex
	frames []domain.Envelope
	closed bool
}

func newRecorder(id string) *recorder { return &recorder{id: id} }

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(msg []byte) error {
	var env domain.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("closed")
	}
	r.frames = append(r.frames, env)
	return nil
}

func (r *recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *recorder) events() []domain.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Envelope(nil), r.frames...)
}

func (r *recorder) types() []string {
	var out []string
	for _, e := range r.events() {
		out = append(out, e.Type)
	}
	return out
}

type fakeParcels struct {
	byDriver map[string][]domain.Parcel
	active   []domain.Parcel
	failFor  map[string]bool
	failAll  bool
	delay    time.Duration
}

func (f *fakeParcels) AssignedParcels(ctx context.Context, driverID string) ([]domain.Parcel, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.failFor[driverID] {
		return nil, errors.New("parcel store unavailable")
	}
	return f.byDriver[driverID], nil
}

func (f *fakeParcels) ActiveParcels(ctx context.Context) ([]domain.Parcel, error) {
	if f.failAll {
		return nil, errors.New("parcel store unavailable")
	}
	return f.active, nil
}

type fakeMirror struct {
	mu        sync.Mutex
	positions []domain.DriverPosition
	statuses  []string
	err       error
}

func (m *fakeMirror) PublishPosition(ctx context.Context, pos domain.DriverPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = append(m.positions, pos)
	return m.err
}

func (m *fakeMirror) PublishDriverStatus(ctx context.Context, driverID string, payload json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, driverID)
	return m.err
}
