// Package db is the document-store layer for tickets. Documents live in
// Redis: one JSON document per ticket plus sorted-set indexes ordered by
// ingestion time, and a pub/sub change feed the live query layer listens on.
package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"petzi-tickets/internal/models"
)

const (
	ticketKeyPrefix     = "ticket:"
	ticketIndexKey      = "tickets:index"
	eventIndexKeyPrefix = "tickets:by_event:"
	dateIndexKeyPrefix  = "tickets:by_date:"

	// ChangesChannel carries one ChangeMessage per ticket write.
	ChangesChannel = "tickets:changes"

	// maxTxRetries bounds the optimistic WATCH retry loop on contended keys.
	maxTxRetries = 100
)

// Change types published on ChangesChannel.
const (
	ChangeAdded    = "added"
	ChangeModified = "modified"
	ChangeRemoved  = "removed"
)

// ChangeMessage is the change-feed notification for one document write.
type ChangeMessage struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	CreatedAtMs int64  `json:"createdAtMs"`
}

// StoredTicket is a ticket document together with its store identity.
type StoredTicket struct {
	ID string `json:"id"`
	models.Ticket
}

type DB struct {
	Client *redis.Client
}

// UpsertTicket writes one ticket document. When the ticket carries a
// ticketNumber it is used as the document identity and the write is a
// field-level merge, so re-delivery of the same webhook converges to one
// document. Without a ticketNumber a fresh surrogate id is assigned
// (duplicate risk accepted, there is no natural key to converge on).
//
// The document write and its index updates run in one MULTI block under a
// WATCH on the document key; a change message is published afterwards.
func (d *DB) UpsertTicket(ctx context.Context, ticket models.Ticket) (string, error) {
	id := ticket.TicketNumber
	if id == "" {
		id = uuid.NewString()
	}
	key := ticketKeyPrefix + id
	score := float64(ticket.CreatedAt.UnixMilli())

	incoming, err := ticketToMap(ticket)
	if err != nil {
		return "", fmt.Errorf("encode ticket %s: %w", id, err)
	}

	var changeType string

	txn := func(tx *redis.Tx) error {
		changeType = ChangeAdded
		existingJSON, err := tx.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return err
		}

		doc := incoming
		if err != redis.Nil {
			changeType = ChangeModified
			var existing map[string]interface{}
			if err := json.Unmarshal([]byte(existingJSON), &existing); err == nil {
				doc = mergeFields(existing, incoming)
			}
		}

		payload, err := json.Marshal(doc)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.ZAdd(ctx, ticketIndexKey, &redis.Z{Score: score, Member: id})
			if ticket.EventID != "" {
				pipe.ZAdd(ctx, eventIndexKeyPrefix+ticket.EventID, &redis.Z{Score: score, Member: id})
			}
			if ticket.SessionDate != "" {
				pipe.ZAdd(ctx, dateIndexKeyPrefix+ticket.SessionDate, &redis.Z{Score: score, Member: id})
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = d.Client.Watch(ctx, txn, key)
		if err != redis.TxFailedErr {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("upsert ticket %s: %w", id, err)
	}

	d.publishChange(ctx, ChangeMessage{
		Type:        changeType,
		ID:          id,
		CreatedAtMs: ticket.CreatedAt.UnixMilli(),
	})

	return id, nil
}

// GetTicketByID fetches one ticket document.
func (d *DB) GetTicketByID(ctx context.Context, id string) (*StoredTicket, error) {
	raw, err := d.Client.Get(ctx, ticketKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("ticket %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	ticket := StoredTicket{ID: id}
	if err := json.Unmarshal([]byte(raw), &ticket.Ticket); err != nil {
		return nil, fmt.Errorf("decode ticket %s: %w", id, err)
	}
	return &ticket, nil
}

// ListAllTickets returns every ticket ordered by ingestion time descending.
func (d *DB) ListAllTickets(ctx context.Context) ([]StoredTicket, error) {
	ids, err := d.Client.ZRevRange(ctx, ticketIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return d.fetchTickets(ctx, ids)
}

// ListNewestTickets returns the newest-n tickets, ingestion time descending.
func (d *DB) ListNewestTickets(ctx context.Context, n int64) ([]StoredTicket, error) {
	if n < 1 {
		n = 1
	}
	ids, err := d.Client.ZRevRange(ctx, ticketIndexKey, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	return d.fetchTickets(ctx, ids)
}

// ListEventTickets returns the tickets of one event, ingestion time ascending.
func (d *DB) ListEventTickets(ctx context.Context, eventID string) ([]StoredTicket, error) {
	ids, err := d.Client.ZRange(ctx, eventIndexKeyPrefix+eventID, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return d.fetchTickets(ctx, ids)
}

// ListSessionTickets returns the tickets of one session date ("YYYY-MM-DD"),
// ingestion time ascending.
func (d *DB) ListSessionTickets(ctx context.Context, sessionDate string) ([]StoredTicket, error) {
	ids, err := d.Client.ZRange(ctx, dateIndexKeyPrefix+sessionDate, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return d.fetchTickets(ctx, ids)
}

func (d *DB) fetchTickets(ctx context.Context, ids []string) ([]StoredTicket, error) {
	if len(ids) == 0 {
		return []StoredTicket{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = ticketKeyPrefix + id
	}

	values, err := d.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	tickets := make([]StoredTicket, 0, len(ids))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Index entry without a document; skip rather than fail the read.
			continue
		}
		ticket := StoredTicket{ID: ids[i]}
		if err := json.Unmarshal([]byte(raw), &ticket.Ticket); err != nil {
			continue
		}
		tickets = append(tickets, ticket)
	}
	return tickets, nil
}

// SubscribeChanges opens a pub/sub subscription on the ticket change feed.
// The returned stop function closes the subscription and the channel; it is
// safe to call more than once.
func (d *DB) SubscribeChanges(ctx context.Context) (<-chan ChangeMessage, func(), error) {
	sub := d.Client.Subscribe(ctx, ChangesChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("subscribe ticket changes: %w", err)
	}

	out := make(chan ChangeMessage)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var change ChangeMessage
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() { _ = sub.Close() }
	return out, stop, nil
}

func (d *DB) publishChange(ctx context.Context, msg ChangeMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	// Change notifications are best effort; a missed one only delays the
	// next live-query refresh.
	_ = d.Client.Publish(ctx, ChangesChannel, payload).Err()
}

func ticketToMap(ticket models.Ticket) (map[string]interface{}, error) {
	raw, err := json.Marshal(ticket)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// mergeFields overlays the incoming fields on the existing document:
// provided fields overwrite, fields absent from the incoming document stay
// untouched.
func mergeFields(existing, incoming map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(existing)+len(incoming))
	for key, value := range existing {
		merged[key] = value
	}
	for key, value := range incoming {
		merged[key] = value
	}
	return merged
}
