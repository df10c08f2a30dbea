package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"petzi-tickets/internal/models"
)

// TicketEvent is the message published for every ingested ticket. ID is the
// document identity in the ticket store (ticketNumber or surrogate).
type TicketEvent struct {
	ID     string        `json:"id"`
	Ticket models.Ticket `json:"ticket"`
}

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

// PublishTicketIngested streams one ingested ticket to the bus, keyed by
// document id so re-deliveries of the same ticket land in the same partition.
func (p *Producer) PublishTicketIngested(ctx context.Context, event TicketEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	fmt.Printf("Publishing to Kafka [ticket_ingested]: %s\n", event.ID)

	return p.Writer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(event.ID),
			Value: msgBytes,
		},
	)
}

// Close flushes and shuts down the writer.
func (p *Producer) Close() error {
	return p.Writer.Close()
}
