package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/messaging/kafka"
)

type fakeOffsetClient struct {
	partitions []int32
	oldest     map[int32]int64
	newest     map[int32]int64
}

func (f *fakeOffsetClient) GetOffset(_ string, partition int32, at int64) (int64, error) {
	if at == sarama.OffsetOldest {
		return f.oldest[partition], nil
	}
	return f.newest[partition], nil
}

func (f *fakeOffsetClient) Partitions(string) ([]int32, error) { return f.partitions, nil }
func (f *fakeOffsetClient) Close() error                       { return nil }

type fakePartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (f *fakePartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return f.messages }
func (f *fakePartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return f.errors }
func (f *fakePartitionConsumer) Close() error                             { return nil }

type fakeConsumerSource struct {
	byPartition map[int32][]*sarama.ConsumerMessage
}

func (f *fakeConsumerSource) ConsumePartition(_ string, partition int32, _ int64) (partitionConsumer, error) {
	msgs := f.byPartition[partition]
	pc := &fakePartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage, len(msgs)),
		errors:   make(chan *sarama.ConsumerError),
	}
	for _, m := range msgs {
		pc.messages <- m
	}
	return pc, nil
}

func (f *fakeConsumerSource) Close() error { return nil }

func deadLetterMessage(t *testing.T, partition int32, offset int64, aggregateType string) *sarama.ConsumerMessage {
	t.Helper()

	order := domain.Order{ID: "order-1", UserID: "user-1", Status: domain.OrderStatusReady, Version: 3}
	original, err := domain.NewOrderEventMessage(domain.EventOrderStatusChanged, order, domain.OrderStatusPreparing, time.Now().UTC())
	require.NoError(t, err)
	original.ID = "outbox-1"
	original.AggregateType = aggregateType

	payload, err := json.Marshal(map[string]any{
		"outbox_id":      original.ID,
		"aggregate_type": original.AggregateType,
		"aggregate_id":   original.AggregateID,
		"event_type":     original.EventType,
		"payload":        json.RawMessage(original.Payload),
		"publish_error":  "leader not available",
		"attempts":       5,
	})
	require.NoError(t, err)

	raw, err := json.Marshal(kafka.NewEnvelope(domain.OutboxMessage{
		ID:            original.ID,
		AggregateType: original.AggregateType,
		AggregateID:   original.AggregateID,
		EventType:     original.EventType,
		Payload:       payload,
	}, time.Now().UTC()))
	require.NoError(t, err)

	return &sarama.ConsumerMessage{Topic: kafka.TopicDeadLetterQueue, Partition: partition, Offset: offset, Value: raw}
}

func testConfig(execute bool) config {
	return config{
		brokers:     []string{"localhost:9092"},
		sourceTopic: kafka.TopicDeadLetterQueue,
		targetTopic: kafka.TopicOrderEvents,
		limit:       10,
		execute:     execute,
		idleTimeout: 200 * time.Millisecond,
	}
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, parseBrokers(" broker-1:9092, ,broker-2:9092 "))
}

func TestReadConfig(t *testing.T) {
	cfg, err := readConfig([]string{"-limit=5", "-execute"}, func(key string) string {
		if key == "KAFKA_BROKERS" {
			return "kafka:9092"
		}
		return ""
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka:9092"}, cfg.brokers)
	assert.Equal(t, 5, cfg.limit)
	assert.True(t, cfg.execute)
	assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)

	noEnv := func(string) string { return "" }
	_, err = readConfig(nil, noEnv)
	assert.ErrorContains(t, err, "brokers are required")

	_, err = readConfig([]string{"-brokers=k:9092", "-target-topic=" + kafka.TopicDeadLetterQueue}, noEnv)
	assert.ErrorContains(t, err, "must differ")

	_, err = readConfig([]string{"-brokers=k:9092", "-limit=0"}, noEnv)
	assert.ErrorContains(t, err, "limit")
}

func TestReplayer_DryRunDoesNotPublish(t *testing.T) {
	r := &replayer{
		cfg: testConfig(false),
		client: &fakeOffsetClient{
			partitions: []int32{0},
			oldest:     map[int32]int64{0: 0},
			newest:     map[int32]int64{0: 2},
		},
		consumer: &fakeConsumerSource{byPartition: map[int32][]*sarama.ConsumerMessage{
			0: {
				deadLetterMessage(t, 0, 0, domain.AggregateOrder),
				{Partition: 0, Offset: 1, Value: []byte("garbage")},
			},
		}},
		logger: log.WithField("test", "dlq"),
	}

	stats, err := r.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 2, replayed: 1, skipped: 1}, stats)
}

func TestReplayer_ExecuteRepublishesOriginalEvent(t *testing.T) {
	syncProducer := mocks.NewSyncProducer(t, nil)
	var published kafka.Envelope
	syncProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		return json.Unmarshal(val, &published)
	})
	producer := kafka.NewProducerWithSyncProducer(syncProducer, log.WithField("test", "dlq"))

	r := &replayer{
		cfg: testConfig(true),
		client: &fakeOffsetClient{
			partitions: []int32{1, 0},
			oldest:     map[int32]int64{0: 0, 1: 5},
			newest:     map[int32]int64{0: 0, 1: 7},
		},
		consumer: &fakeConsumerSource{byPartition: map[int32][]*sarama.ConsumerMessage{
			1: {
				deadLetterMessage(t, 1, 5, domain.AggregateOrder),
				deadLetterMessage(t, 1, 6, "invoice"),
			},
		}},
		publisher: kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
		logger:    log.WithField("test", "dlq"),
	}

	stats, err := r.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 2, replayed: 1, skipped: 1}, stats)
	require.NoError(t, producer.Close())

	assert.Equal(t, "outbox-1", published.ID)
	assert.Equal(t, domain.EventOrderStatusChanged, published.EventType)

	var event domain.OrderEvent
	require.NoError(t, json.Unmarshal(published.Payload, &event))
	assert.Equal(t, "order-1", event.OrderID)
}

func TestReplayer_RespectsLimit(t *testing.T) {
	cfg := testConfig(false)
	cfg.limit = 1

	r := &replayer{
		cfg: cfg,
		client: &fakeOffsetClient{
			partitions: []int32{0, 1},
			oldest:     map[int32]int64{0: 0, 1: 0},
			newest:     map[int32]int64{0: 2, 1: 1},
		},
		consumer: &fakeConsumerSource{byPartition: map[int32][]*sarama.ConsumerMessage{
			0: {deadLetterMessage(t, 0, 0, domain.AggregateOrder), deadLetterMessage(t, 0, 1, domain.AggregateOrder)},
			1: {deadLetterMessage(t, 1, 0, domain.AggregateOrder)},
		}},
		logger: log.WithField("test", "dlq"),
	}

	stats, err := r.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.processed)
}

func TestReplayer_ExecuteRequiresPublisher(t *testing.T) {
	r := &replayer{cfg: testConfig(true), client: &fakeOffsetClient{}, consumer: &fakeConsumerSource{}, logger: log.WithField("test", "dlq")}

	_, err := r.run(context.Background())
	require.Error(t, err)
}

func TestReplayer_PublishErrorStopsReplay(t *testing.T) {
	syncProducer := mocks.NewSyncProducer(t, nil)
	syncProducer.ExpectSendMessageAndFail(errors.New("broker down"))
	producer := kafka.NewProducerWithSyncProducer(syncProducer, log.WithField("test", "dlq"))
	defer func() { _ = producer.Close() }()

	r := &replayer{
		cfg: testConfig(true),
		client: &fakeOffsetClient{
			partitions: []int32{0},
			oldest:     map[int32]int64{0: 0},
			newest:     map[int32]int64{0: 1},
		},
		consumer: &fakeConsumerSource{byPartition: map[int32][]*sarama.ConsumerMessage{
			0: {deadLetterMessage(t, 0, 0, domain.AggregateOrder)},
		}},
		publisher: kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
		logger:    log.WithField("test", "dlq"),
	}

	_, err := r.run(context.Background())
	require.ErrorContains(t, err, "outbox-1")
}
