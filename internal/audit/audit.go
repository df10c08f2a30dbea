// Package audit keeps a local append-only log of webhook deliveries in
// SQLite. The ticket documents already carry the raw payload, but the audit
// log survives independently of the document store and is the place to
// reconcile from when the ticket write and the aggregate update diverge.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/uptrace/bun"

	"petzi-tickets/internal/models"
)

// Delivery statuses.
const (
	StatusIngested = "ingested"
	StatusFailed   = "failed"
)

// Delivery is one received webhook, verified and normalized.
type Delivery struct {
	bun.BaseModel `bun:"table:webhook_deliveries"`

	ID                 int64     `bun:"id,pk,autoincrement"`
	EventType          string    `bun:"event_type"`
	EventID            string    `bun:"event_id"`
	TicketNumber       string    `bun:"ticket_number"`
	SignatureTimestamp string    `bun:"signature_timestamp"`
	Payload            string    `bun:"payload"`
	Status             string    `bun:"status"`
	ReceivedAt         time.Time `bun:"received_at"`
}

// NewDelivery builds the audit row for one normalized ticket.
func NewDelivery(ticket models.Ticket, signatureTimestamp, status string) Delivery {
	payload := ""
	if raw, err := json.Marshal(ticket.RawPayload); err == nil {
		payload = string(raw)
	}
	return Delivery{
		EventType:          ticket.EventType,
		EventID:            ticket.EventID,
		TicketNumber:       ticket.TicketNumber,
		SignatureTimestamp: signatureTimestamp,
		Payload:            payload,
		Status:             status,
		ReceivedAt:         ticket.CreatedAt,
	}
}

type Log struct {
	Bun *bun.DB
}

// Init creates the delivery table when it does not exist yet.
func (l *Log) Init(ctx context.Context) error {
	_, err := l.Bun.NewCreateTable().
		Model((*Delivery)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// RecordDelivery appends one delivery to the log.
func (l *Log) RecordDelivery(ctx context.Context, delivery Delivery) error {
	_, err := l.Bun.NewInsert().
		Model(&delivery).
		Exec(ctx)
	return err
}

// RecentDeliveries returns the latest deliveries, newest first.
func (l *Log) RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	var deliveries []Delivery
	err := l.Bun.NewSelect().
		Model(&deliveries).
		Order("received_at DESC", "id DESC").
		Limit(limit).
		Scan(ctx)
	return deliveries, err
}

// DeliveriesForTicket returns every delivery seen for one ticket number,
// oldest first. Useful when chasing a re-delivery or an uncounted ticket.
func (l *Log) DeliveriesForTicket(ctx context.Context, ticketNumber string) ([]Delivery, error) {
	var deliveries []Delivery
	err := l.Bun.NewSelect().
		Model(&deliveries).
		Where("ticket_number = ?", ticketNumber).
		Order("received_at ASC", "id ASC").
		Scan(ctx)
	return deliveries, err
}
