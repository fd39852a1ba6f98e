package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/market-sentinel/src/eventcache"
	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

// KafkaSink publishes every processed event to a single topic, keyed by the
// cache key so one instrument stays on one partition.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("NewKafkaSink: failed to create producer: %v: %w", err, eventmodels.ErrTransport)
	}

	return NewKafkaSinkWithProducer(producer, topic), nil
}

func NewKafkaSinkWithProducer(producer sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Name() string {
	return "kafka-sink"
}

func (s *KafkaSink) HandleEvent(_ context.Context, ev eventmodels.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("KafkaSink.HandleEvent: failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(eventcache.KeyFor(ev)),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("category"), Value: []byte(ev.Category)},
			{Key: []byte("source"), Value: []byte(ev.SourceID)},
		},
	}

	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("KafkaSink.HandleEvent: %v: %w", err, eventmodels.ErrTransport)
	}

	log.WithField("topic", s.topic).Debugf("published %s to partition %d at offset %d", ev, partition, offset)
	return nil
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
