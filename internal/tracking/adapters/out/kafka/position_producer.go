package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fastfare/internal/shared/config"
	"fastfare/internal/shared/logger"
	out "fastfare/internal/tracking/application/ports/out"
	"fastfare/internal/tracking/domain"

	"github.com/IBM/sarama"
)

// PositionProducer mirrors positions and driver status frames to one Kafka
// topic. Messages are keyed by driver id so one driver's updates stay on
// one partition, in order.
type PositionProducer struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
	now      func() time.Time
}

var _ out.PositionMirror = (*PositionProducer)(nil)

// NewSaramaConfig returns the producer settings used by the mirror.
func NewSaramaConfig() *sarama.Config {
	c := sarama.NewConfig()
	c.ClientID = "fastfare-tracking"
	c.Producer.RequiredAcks = sarama.WaitForLocal
	c.Producer.Retry.Max = 3
	c.Producer.Retry.Backoff = 100 * time.Millisecond
	c.Producer.Return.Successes = true // required by SyncProducer
	c.Producer.Partitioner = sarama.NewHashPartitioner
	c.Net.DialTimeout = 10 * time.Second
	c.Net.ReadTimeout = 10 * time.Second
	c.Net.WriteTimeout = 10 * time.Second
	return c
}

func NewPositionProducerFromConfig(cfg config.KafkaConfig, log *logger.Logger) (*PositionProducer, error) {
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	p, err := sarama.NewSyncProducer(brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create sarama producer: %w", err)
	}

	log.Info(logger.Entry{
		Action:  "kafka_producer_created",
		Message: cfg.Topic,
		Additional: map[string]any{
			"brokers": brokers,
		},
	})
	return NewPositionProducer(p, cfg.Topic, log), nil
}

func NewPositionProducer(p sarama.SyncProducer, topic string, log *logger.Logger) *PositionProducer {
	return &PositionProducer{
		producer: p,
		topic:    topic,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *PositionProducer) PublishPosition(ctx context.Context, pos domain.DriverPosition) error {
	body, err := json.Marshal(out.PositionMessage{
		Event:     out.MirrorEventPosition,
		Position:  pos,
		EmittedAt: p.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	return p.send(ctx, pos.DriverID, out.MirrorEventPosition, body)
}

func (p *PositionProducer) PublishDriverStatus(ctx context.Context, driverID string, payload json.RawMessage) error {
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
	return p.send(ctx, driverID, out.MirrorEventDriverStatus, body)
}

func (p *PositionProducer) send(ctx context.Context, key, event string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event"), Value: []byte(event)},
		},
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send to %s: %w", p.topic, err)
	}

	p.log.Debug(logger.Entry{
		Action:   "kafka_message_sent",
		Message:  event,
		DriverID: key,
		Additional: map[string]any{
			"partition": partition,
			"offset":    offset,
		},
	})
	return nil
}

func (p *PositionProducer) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
