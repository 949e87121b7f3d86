package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fastfare/internal/shared/logger"
	"fastfare/internal/shared/mq"
	out "fastfare/internal/tracking/application/ports/out"
	"fastfare/internal/tracking/domain"
)

// Publisher is the subset of *mq.RabbitMQ the mirror needs.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// PositionPublisher mirrors positions to location_fanout and driver status
// frames to driver_topic. Positions never go to driver_topic, which would
// feed them back into the location_reports queue.
type PositionPublisher struct {
	mq  Publisher
	log *logger.Logger
	now func() time.Time
}

var _ out.PositionMirror = (*PositionPublisher)(nil)

func NewPositionPublisher(p Publisher, log *logger.Logger) *PositionPublisher {
	return &PositionPublisher{
		mq:  p,
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// PublishPosition publishes to the location_fanout exchange.
func (p *PositionPublisher) PublishPosition(ctx context.Context, pos domain.DriverPosition) error {
	body, err := json.Marshal(out.PositionMessage{
		Event:     out.MirrorEventPosition,
		Position:  pos,
		EmittedAt: p.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}

	if err := p.mq.Publish(ctx, mq.ExchangeLocationFanout, "", body); err != nil {
		return fmt.Errorf("publish to %s: %w", mq.ExchangeLocationFanout, err)
	}

	p.log.Debug(logger.Entry{
		Action:   "location_update_published",
		Message:  fmt.Sprintf("lat=%.6f, lng=%.6f", pos.Latitude, pos.Longitude),
		DriverID: pos.DriverID,
	})
	return nil
}

// PublishDriverStatus publishes to driver_topic.
// Routing key: driver.status.{driver_id}
func (p *PositionPublisher) PublishDriverStatus(ctx context.Context, driverID string, payload json.RawMessage) error {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	body, err := json.Marshal(out.DriverStatusMessage{
		Event:     out.MirrorEventDriverStatus,
		DriverID:  driverID,
		Status:    payload,
		EmittedAt: p.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal driver status: %w", err)
	}

	if err := p.mq.Publish(ctx, mq.ExchangeDriverTopic, mq.DriverStatusKey(driverID), body); err != nil {
		return fmt.Errorf("publish to %s: %w", mq.ExchangeDriverTopic, err)
	}

	p.log.Debug(logger.Entry{
		Action:   "driver_status_published",
		Message:  mq.DriverStatusKey(driverID),
		DriverID: driverID,
	})
	return nil
}
