package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-attendance/internal/models"
)

type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer}
}

// Publish writes a raw message to the producer's topic
func (p *Producer) Publish(key string, value []byte) error {
	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(key),
			Value: value,
		},
	)
}

// PublishCountChanged streams a committed count mutation to Kafka. Messages
// are keyed by event ID so all changes of one event land on one partition
// in commit order.
func (p *Producer) PublishCountChanged(event models.CountChangedEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	fmt.Printf("Publishing to Kafka [count_changed]: %s\n", string(msgBytes))

	return p.Publish(event.EventID, msgBytes)
}

// Close flushes and shuts down the writer
func (p *Producer) Close() error {
	return p.Writer.Close()
}
