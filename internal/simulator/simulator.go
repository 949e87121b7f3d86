// Package simulator drives fake couriers against a running tracking
// service over WebSocket.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jaswdr/faker"
	"golang.org/x/sync/errgroup"

	"fastfare/internal/shared/logger"
	"fastfare/internal/tracking/domain"
)

// TokenFunc mints a bearer token for a driver. It may be nil.
type TokenFunc func(driverID string) (string, error)

type Config struct {
	URL          string // ws://host:port/ws
	Drivers      int
	Interval     time.Duration
	Duration     time.Duration // zero runs until ctx is done
	CenterLat    float64
	CenterLng    float64
	RadiusKm     float64
	WithShipment bool
}

// Courier is one simulated driver.
type Courier struct {
	ID         string
	Name       string
	Lat        float64
	Lng        float64
	TrackingID string
	heading    float64
	rnd        faker.Faker
}

type Simulator struct {
	cfg   Config
	token TokenFunc
	log   *logger.Logger
	fake  faker.Faker

	Couriers []*Courier
	sent     atomic.Int64
}

func NewSimulator(cfg Config, token TokenFunc, log *logger.Logger) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = 5
	}
	s := &Simulator{cfg: cfg, token: token, log: log, fake: faker.New()}
	for i := 0; i < cfg.Drivers; i++ {
		s.Couriers = append(s.Couriers, s.newCourier(i))
	}
	return s
}

func (s *Simulator) newCourier(i int) *Courier {
	latRange := s.cfg.RadiusKm / 111.0 // km to degrees
	lngRange := latRange / math.Cos(s.cfg.CenterLat*math.Pi/180.0)

	c := &Courier{
		ID:      fmt.Sprintf("drv-%03d", i+1),
		Name:    s.fake.Person().Name(),
		Lat:     s.cfg.CenterLat + latRange*s.fake.Float64(6, -1, 1),
		Lng:     s.cfg.CenterLng + lngRange*s.fake.Float64(6, -1, 1),
		heading: s.fake.Float64(4, 0, 360) * math.Pi / 180,
		rnd:     faker.New(),
	}
	if s.cfg.WithShipment {
		c.TrackingID = s.fake.Numerify("AWB####")
	}
	return c
}

// Sent is the number of reports written so far.
func (s *Simulator) Sent() int64 { return s.sent.Load() }

// Run connects every courier and reports positions until ctx is done or
// Duration elapses. The first connection failure stops the run.
func (s *Simulator) Run(ctx context.Context) error {
	if s.cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Duration)
		defer cancel()
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, c := range s.Couriers {
		g.Go(func() error { return s.drive(ctx, c) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	s.log.Info(logger.Entry{
		Action:     "simulation_finished",
		Message:    fmt.Sprintf("%d couriers, %d reports", len(s.Couriers), s.Sent()),
		Additional: map[string]any{"url": s.cfg.URL},
	})
	return err
}

func (s *Simulator) drive(ctx context.Context, c *Courier) error {
	target, err := s.dialURL(c)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.ID, err)
	}
	defer conn.Close()

	// drain server frames so pings are answered
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.report(conn, c); err != nil {
			return fmt.Errorf("report %s: %w", c.ID, err)
		}
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()
		case <-ticker.C:
			s.step(c)
		}
	}
}

func (s *Simulator) report(conn *websocket.Conn, c *Courier) error {
	frame, err := domain.EncodeEvent(domain.EventReportPosition, map[string]any{
		"driverId":           c.ID,
		"driverName":         c.Name,
		"lat":                c.Lat,
		"lng":                c.Lng,
		"timestamp":          time.Now().UTC().Format(time.RFC3339Nano),
		"shipmentTrackingId": c.TrackingID,
	})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return err
	}
	s.sent.Add(1)
	return nil
}

// step moves the courier roughly 10 m along a drifting heading. Each
// courier owns its faker since faker.Faker is not safe for concurrent use.
func (s *Simulator) step(c *Courier) {
	const stepKm = 0.01
	c.heading += c.rnd.Float64(3, -1, 1) * math.Pi / 8
	c.Lat += stepKm / 111.0 * math.Cos(c.heading)
	c.Lng += stepKm / (111.0 * math.Cos(c.Lat*math.Pi/180.0)) * math.Sin(c.heading)
}

func (s *Simulator) dialURL(c *Courier) (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", s.cfg.URL, err)
	}
	q := u.Query()
	q.Set("clientType", "driver")
	q.Set("driverId", c.ID)
	if s.token != nil {
		tok, err := s.token(c.ID)
		if err != nil {
			return "", fmt.Errorf("token for %s: %w", c.ID, err)
		}
		q.Set("token", tok)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
