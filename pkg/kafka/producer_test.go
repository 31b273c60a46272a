package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/config"
)

func testConfig() config.KafkaConfig {
	return config.KafkaConfig{
		Brokers:   []string{"127.0.0.1:1"},
		Topic:     "dashboard-access-events",
		BatchSize: 10,
	}
}

type unencodable struct{}

func (unencodable) MarshalJSON() ([]byte, error) {
	return nil, errors.New("cannot encode")
}

func TestPublishBatch_MarshalErrorWritesNothing(t *testing.T) {
	p := NewProducer(testConfig())
	t.Cleanup(func() { _ = p.Close() })

	err := p.PublishBatch(context.Background(), []Event{
		{Key: "aggregate", Value: map[string]any{"rows": 2}},
		{Key: "realtime", Value: unencodable{}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshaling event value")
	assert.Zero(t, p.writer.Stats().Writes, "no write attempted after a bad event")
}

func TestNewProducer_WriterSettings(t *testing.T) {
	p := NewProducer(testConfig())
	t.Cleanup(func() { _ = p.Close() })

	assert.Equal(t, "dashboard-access-events", p.writer.Topic)
	assert.Equal(t, 10, p.writer.BatchSize)
	assert.Equal(t, 3, p.writer.MaxAttempts)
}
