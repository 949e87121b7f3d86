package mq

import (
	"fmt"

	"fastfare/internal/shared/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchanges and queues used by the tracking service.
const (
	ExchangeDriverTopic    = "driver_topic"
	ExchangeLocationFanout = "location_fanout"

	QueueLocationReports   = "tracking.location_reports"
	QueueLocationBroadcast = "location.broadcast"

	// RoutingLocationReports matches driver.location.<driverId>.
	RoutingLocationReports = "driver.location.#"
)

// LocationReportKey is the routing key for a report from driverID.
func LocationReportKey(driverID string) string { return "driver.location." + driverID }

// DriverStatusKey is the routing key for a status frame from driverID.
func DriverStatusKey(driverID string) string {
	if driverID == "" {
		driverID = "unknown"
	}
	return "driver.status." + driverID
}

type exchange struct {
	name, kind string
}

type binding struct {
	queue, key, exchange string
}

var (
	exchanges = []exchange{
		{ExchangeDriverTopic, amqp.ExchangeTopic},
		{ExchangeLocationFanout, amqp.ExchangeFanout},
	}
	bindings = []binding{
		{QueueLocationReports, RoutingLocationReports, ExchangeDriverTopic},
		{QueueLocationBroadcast, "", ExchangeLocationFanout},
	}
)

// SetupTopology declares the exchanges and queues. Declarations are
// idempotent, so every service instance runs it at startup.
func SetupTopology(r *RabbitMQ, log *logger.Logger) error {
	ch := r.Channel()
	if ch == nil {
		return ErrChannelUnavailable
	}

	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare %s: %w", ex.name, err)
		}
	}
	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.queue, err)
		}
	}

	log.Info(logger.Entry{
		Action:  "topology_setup_complete",
		Message: "tracking exchanges and queues declared",
	})
	return nil
}
