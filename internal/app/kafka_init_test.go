package app

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront-sync/internal/messaging/kafka"
)

// stubKafka подменяет конструкторы Kafka до конца теста.
func stubKafka(t *testing.T, producer func([]string, ...kafka.ProducerOption) (*kafka.Producer, error),
	consumer func([]string, string, []string, kafka.MessageHandler, ...kafka.ConsumerOption) (*kafka.Consumer, error)) {
	t.Helper()

	prevProducer, prevConsumer := newKafkaProducer, newStatusConsumer
	t.Cleanup(func() { newKafkaProducer, newStatusConsumer = prevProducer, prevConsumer })
	if producer != nil {
		newKafkaProducer = producer
	}
	if consumer != nil {
		newStatusConsumer = consumer
	}
}

func kafkaTestConfig(brokers string) Config {
	cfg := DefaultConfig()
	cfg.KafkaBrokers = brokers
	return cfg
}

func TestOpenKafka_WithoutBrokers(t *testing.T) {
	stubKafka(t, func([]string, ...kafka.ProducerOption) (*kafka.Producer, error) {
		t.Fatal("producer must not be created without brokers")
		return nil, nil
	}, nil)

	bridge := openKafka(kafkaTestConfig(" , "), log.WithField("test", t.Name()))
	assert.Nil(t, bridge.producer)
	bridge.close()
}

func TestOpenKafka_UnreachableBrokersAreNotFatal(t *testing.T) {
	var gotBrokers []string
	stubKafka(t, func(brokers []string, _ ...kafka.ProducerOption) (*kafka.Producer, error) {
		gotBrokers = brokers
		return nil, sarama.ErrOutOfBrokers
	}, nil)

	bridge := openKafka(kafkaTestConfig("b1:9092, b2:9092"), log.WithField("test", t.Name()))
	assert.Nil(t, bridge.producer)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, gotBrokers)
}

func TestOpenKafka_ClosesProducer(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	stubKafka(t, func([]string, ...kafka.ProducerOption) (*kafka.Producer, error) {
		return kafka.NewProducerFromSync(mock, nil), nil
	}, nil)

	bridge := openKafka(kafkaTestConfig("localhost:9092"), log.WithField("test", t.Name()))
	require.NotNil(t, bridge.producer)

	bridge.close()
	assert.Nil(t, bridge.producer)
	// Повторный close ничего не делает.
	bridge.close()
}

func TestKafkaBridge_Listen(t *testing.T) {
	tests := []struct {
		name      string
		brokers   string
		consume   bool
		wantCalls int
	}{
		{name: "no brokers", brokers: "", consume: true},
		{name: "status events disabled", brokers: "localhost:9092", consume: false},
		{name: "consumer unavailable", brokers: "localhost:9092", consume: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			var gotTopics []string
			stubKafka(t, nil, func(_ []string, groupID string, topics []string, _ kafka.MessageHandler, _ ...kafka.ConsumerOption) (*kafka.Consumer, error) {
				calls++
				gotTopics = topics
				assert.Equal(t, "storefront-sync-cache", groupID)
				return nil, errors.New("group coordinator not available")
			})

			cfg := kafkaTestConfig(tt.brokers)
			cfg.KafkaConsumeStatusEvents = tt.consume
			bridge := &kafkaBridge{logger: log.WithField("test", t.Name())}

			bridge.listen(context.Background(), cfg, nil)
			assert.Nil(t, bridge.consumer)
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantCalls > 0 {
				assert.Equal(t, []string{kafka.TopicOrderEvents}, gotTopics)
			}
		})
	}
}

func TestSplitBrokers(t *testing.T) {
	t.Parallel()

	tests := map[string][]string{
		"":                          nil,
		" , ,":                      nil,
		"localhost:9092":            {"localhost:9092"},
		"b1:9092, b2:9092 ,b3:9092": {"b1:9092", "b2:9092", "b3:9092"},
		"b1:9092,,b2:9092":          {"b1:9092", "b2:9092"},
	}
	for in, want := range tests {
		assert.Equal(t, want, splitBrokers(in), "splitBrokers(%q)", in)
	}
}
