package in_amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fastfare/internal/shared/logger"
	"fastfare/internal/shared/mq"
	in "fastfare/internal/tracking/application/ports/in"
	"fastfare/internal/tracking/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

const consumerTag = "tracking-location-consumer"

// Consumer is the subset of *mq.RabbitMQ the location consumer needs.
type Consumer interface {
	Consume(ctx context.Context, queue, consumer string, handler func(amqp.Delivery)) error
}

// LocationReportConsumer ingests position reports published to
// driver_topic with routing key driver.location.<driverId>. Reports take
// the same path as report-position frames but carry no connection, so a
// socket disconnect never marks them offline.
type LocationReportConsumer struct {
	mq  Consumer
	uc  in.TrackingUseCase
	log *logger.Logger
}

func NewLocationReportConsumer(c Consumer, uc in.TrackingUseCase, log *logger.Logger) *LocationReportConsumer {
	return &LocationReportConsumer{mq: c, uc: uc, log: log}
}

func (c *LocationReportConsumer) Start(ctx context.Context) error {
	if err := c.mq.Consume(ctx, mq.QueueLocationReports, consumerTag, func(d amqp.Delivery) {
		c.deliver(ctx, d)
	}); err != nil {
		return fmt.Errorf("start location consumer: %w", err)
	}

	c.log.Info(logger.Entry{
		Action:  "location_consumer_started",
		Message: fmt.Sprintf("listening on %s (%s)", mq.QueueLocationReports, mq.RoutingLocationReports),
	})
	return nil
}

func (c *LocationReportConsumer) deliver(ctx context.Context, d amqp.Delivery) {
	if err := c.Handle(ctx, d.RoutingKey, d.Body); err != nil {
		c.log.Warn(logger.Entry{
			Action:  "location_report_rejected",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
			Additional: map[string]any{
				"routing_key": d.RoutingKey,
			},
		})
		// malformed input will not parse on redelivery either
		_ = d.Nack(false, !IsMalformed(err))
		return
	}
	_ = d.Ack(false)
}

// Handle ingests one message body. The driver id falls back to the last
// routing key segment when the body has none.
func (c *LocationReportConsumer) Handle(ctx context.Context, routingKey string, body []byte) error {
	report, err := domain.DecodeReport(body, "")
	if err != nil {
		return err
	}
	if report.DriverID == "" {
		report.DriverID = driverFromKey(routingKey)
	}

	if _, ok := c.uc.ReportPosition(ctx, report); !ok {
		c.log.Debug(logger.Entry{
			Action:  "location_report_dropped",
			Message: domain.ErrEmptyDriverID.Error(),
			Additional: map[string]any{
				"routing_key": routingKey,
			},
		})
	}
	return nil
}

func driverFromKey(key string) string {
	const prefix = "driver.location."
	if !strings.HasPrefix(key, prefix) {
		return ""
	}
	id := strings.TrimPrefix(key, prefix)
	if id == "" || strings.ContainsAny(id, "*#") {
		return ""
	}
	return id
}

// IsMalformed reports whether err came from an undecodable message.
func IsMalformed(err error) bool { return errors.Is(err, domain.ErrInvalidPayload) }
