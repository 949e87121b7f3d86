package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastfare/internal/shared/config"
	"fastfare/internal/shared/logger"
	out "fastfare/internal/tracking/application/ports/out"
	"fastfare/internal/tracking/domain"
)

func TestPublishPositionKeyedByDriver(t *testing.T) {
	mp := mocks.NewSyncProducer(t, NewSaramaConfig())
	mp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "driver-positions" {
			return fmt.Errorf("topic %q", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "d1" {
			return fmt.Errorf("key %q", key)
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var m out.PositionMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		if m.Position.DriverID != "d1" || m.Event != out.MirrorEventPosition {
			return fmt.Errorf("unexpected body %s", raw)
		}
		return nil
	})

	p := NewPositionProducer(mp, "driver-positions", logger.Nop())
	require.NoError(t, p.PublishPosition(context.Background(), domain.DriverPosition{DriverID: "d1", Latitude: 1}))
	require.NoError(t, p.Close())
}

func TestPublishDriverStatusFailure(t *testing.T) {
	mp := mocks.NewSyncProducer(t, NewSaramaConfig())
	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewPositionProducer(mp, "driver-positions", logger.Nop())
	err := p.PublishDriverStatus(context.Background(), "d1", json.RawMessage(`{"s":1}`))
	assert.True(t, errors.Is(err, sarama.ErrOutOfBrokers))
	require.NoError(t, p.Close())
}

func TestCancelledContextSkipsSend(t *testing.T) {
	mp := mocks.NewSyncProducer(t, NewSaramaConfig())
	p := NewPositionProducer(mp, "driver-positions", logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.PublishPosition(ctx, domain.DriverPosition{DriverID: "d1"}), context.Canceled)
	require.NoError(t, p.Close())
}

func TestNoBrokers(t *testing.T) {
	_, err := NewPositionProducerFromConfig(config.KafkaConfig{Brokers: " , ", Topic: "x"}, logger.Nop())
	assert.Error(t, err)
}
