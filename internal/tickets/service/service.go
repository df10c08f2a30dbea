package tickets

import (
	"context"
	"fmt"
	"time"

	"petzi-tickets/internal/audit"
	"petzi-tickets/internal/kafka"
	"petzi-tickets/internal/logger"
	"petzi-tickets/internal/models"
	"petzi-tickets/internal/webhook/normalize"
)

// TicketDBLayer is the store surface the ingestion path writes through.
type TicketDBLayer interface {
	UpsertTicket(ctx context.Context, ticket models.Ticket) (string, error)
	UpdateEventAggregate(ctx context.Context, ticket models.Ticket) error
	GetEventAggregate(ctx context.Context, eventID string) (*models.EventAggregate, error)
}

// DeliveryAuditor records verified webhook deliveries for audit.
type DeliveryAuditor interface {
	RecordDelivery(ctx context.Context, delivery audit.Delivery) error
}

// EventPublisher fans ingested tickets out to the message bus.
type EventPublisher interface {
	PublishTicketIngested(ctx context.Context, event kafka.TicketEvent) error
}

// TicketService runs the ingestion pipeline for one verified webhook:
// normalize, upsert the ticket document, update the event aggregate, then
// best-effort audit and fan-out. Auditor and Producer are optional.
type TicketService struct {
	DB       TicketDBLayer
	Auditor  DeliveryAuditor
	Producer EventPublisher
	Logger   *logger.Logger
}

func NewTicketService(db TicketDBLayer) *TicketService {
	return &TicketService{DB: db}
}

// IngestResult reports what one webhook delivery produced.
type IngestResult struct {
	TicketID string
	Ticket   models.Ticket
}

// IngestWebhook processes one verified, parsed webhook payload.
// signatureTimestamp is the "t" value of the verified header, kept for the
// audit trail.
//
// The ticket write and the aggregate update are two separate store
// operations with no cross-document atomicity: when the aggregate update
// fails the ticket may already be persisted. The caller surfaces that as a
// server error; the delivery will be retried by the provider.
func (s *TicketService) IngestWebhook(ctx context.Context, payload map[string]interface{}, signatureTimestamp string) (IngestResult, error) {
	ticket := normalize.BuildTicket(payload, time.Now().UTC())

	ticketID, err := s.DB.UpsertTicket(ctx, ticket)
	if err != nil {
		s.audit(ctx, ticket, signatureTimestamp, audit.StatusFailed)
		return IngestResult{}, fmt.Errorf("store ticket: %w", err)
	}
	s.logStore("UPSERT", fmt.Sprintf("ticket %s (%s)", ticketID, ticket.EventType))

	if err := s.DB.UpdateEventAggregate(ctx, ticket); err != nil {
		// Accepted inconsistency window: the ticket document is stored but
		// not counted yet.
		s.audit(ctx, ticket, signatureTimestamp, audit.StatusFailed)
		return IngestResult{}, fmt.Errorf("update event aggregate: %w", err)
	}
	if ticket.EventID != "" && s.Logger != nil {
		s.Logger.LogAggregate(ticket.EventID, "+1 ticket")
	}

	s.audit(ctx, ticket, signatureTimestamp, audit.StatusIngested)

	if s.Producer != nil {
		event := kafka.TicketEvent{ID: ticketID, Ticket: ticket}
		if err := s.Producer.PublishTicketIngested(ctx, event); err != nil {
			// Fan-out is best effort; the webhook still succeeds.
			if s.Logger != nil {
				s.Logger.Error("KAFKA", fmt.Sprintf("publish ticket %s failed: %v", ticketID, err))
			}
		}
	}

	return IngestResult{TicketID: ticketID, Ticket: ticket}, nil
}

// GetEventAggregate exposes the rollup of one event to the read side.
func (s *TicketService) GetEventAggregate(ctx context.Context, eventID string) (*models.EventAggregate, error) {
	return s.DB.GetEventAggregate(ctx, eventID)
}

func (s *TicketService) audit(ctx context.Context, ticket models.Ticket, signatureTimestamp, status string) {
	if s.Auditor == nil {
		return
	}
	delivery := audit.NewDelivery(ticket, signatureTimestamp, status)
	if err := s.Auditor.RecordDelivery(ctx, delivery); err != nil && s.Logger != nil {
		s.Logger.Error("AUDIT", fmt.Sprintf("record delivery for ticket %q failed: %v", ticket.TicketNumber, err))
	}
}

func (s *TicketService) logStore(operation, message string) {
	if s.Logger != nil {
		s.Logger.LogStore(operation, message)
	}
}
