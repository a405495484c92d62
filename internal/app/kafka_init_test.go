package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	producer, err := initKafkaProducer(nil, logger)

	if err != nil {
		t.Errorf("expected no error for empty brokers, got %v", err)
	}
	if producer != nil {
		t.Error("expected nil producer for empty brokers")
	}
}

func TestInitKafkaProducer_UnreachableBroker(t *testing.T) {
	logger := log.WithField("test", "kafka")

	// порт 1 закрыт, соединение отклоняется сразу
	producer, err := initKafkaProducer([]string{"127.0.0.1:1"}, logger)

	if err == nil {
		t.Error("expected error for unreachable broker")
	}
	if producer != nil {
		t.Error("expected nil producer on error")
	}
}

func TestCloseKafka_NilProducer(t *testing.T) {
	logger := log.WithField("test", "kafka")

	// Не должно паниковать
	closeKafkaProducer(nil, logger)
}

func TestConnectKafka_LogsFallback(t *testing.T) {
	logger, hook := test.NewNullLogger()
	entry := log.NewEntry(logger)

	producer := connectKafka([]string{"127.0.0.1:1"}, entry)
	assert.Nil(t, producer)
	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, log.WarnLevel, last.Level)
	assert.Equal(t, "kafka is unavailable, order events stay in outbox", last.Message)
	assert.NotNil(t, last.Data[log.ErrorKey])

	hook.Reset()
	producer = connectKafka(nil, entry)
	assert.Nil(t, producer)
	last = hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, log.InfoLevel, last.Level)
	assert.Equal(t, "kafka is not configured, order events stay in outbox", last.Message)
}
