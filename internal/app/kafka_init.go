package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/messaging/kafka"
)

// initKafkaProducer создаёт producer, если заданы brokers.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// connectKafka возвращает producer или nil, если Kafka не настроена или недоступна.
// Без producer-а outbox-воркер не запускается и события копятся в outbox.
func connectKafka(brokers []string, logger *log.Entry) *kafka.Producer {
	producer, err := initKafkaProducer(brokers, logger)
	switch {
	case err != nil:
		logger.WithError(err).WithField("brokers", brokers).Warn("kafka is unavailable, order events stay in outbox")
	case producer == nil:
		logger.Info("kafka is not configured, order events stay in outbox")
	}
	return producer
}

// closeKafkaProducer закрывает Kafka producer если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
