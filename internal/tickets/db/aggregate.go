package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"

	"petzi-tickets/internal/models"
)

const aggregateKeyPrefix = "event_aggregate:"

// Aggregate hash fields.
const (
	aggFieldEventID      = "event_id"
	aggFieldEventName    = "event_name"
	aggFieldTicketsCount = "tickets_count"
	aggFieldRevenue      = "revenue"
	aggFieldSessions     = "sessions"
)

// UpdateEventAggregate applies one ticket ingestion to the rolling aggregate
// of its event. The update runs under a WATCH on the single aggregate key
// with optimistic retries, so concurrent webhook deliveries for the same
// event serialize without losing increments. The count itself is an HINCRBY,
// atomic at the store level and composable with the surrounding transaction.
//
// A ticket without an eventId contributes nothing and returns nil: the
// aggregate is a best-effort secondary index, not a gatekeeper.
//
// Note the count is per ingestion call, not per distinct ticketNumber:
// re-delivery of the same webhook converges the ticket document but still
// increments tickets_count.
func (d *DB) UpdateEventAggregate(ctx context.Context, ticket models.Ticket) error {
	if ticket.EventID == "" {
		return nil
	}
	key := aggregateKeyPrefix + ticket.EventID

	txn := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}

		revenue, err := decodeCurrencyAmounts(fields[aggFieldRevenue])
		if err != nil {
			return fmt.Errorf("decode aggregate revenue: %w", err)
		}
		sessions, err := decodeSessions(fields[aggFieldSessions])
		if err != nil {
			return fmt.Errorf("decode aggregate sessions: %w", err)
		}

		currency := strings.TrimSpace(ticket.PriceCurrency)
		hasPrice := ticket.HasPrice() && currency != ""

		updateRevenue := false
		if hasPrice {
			revenue = addRevenue(revenue, currency, *ticket.PriceAmount)
			updateRevenue = true
		}

		updateSessions := false
		if ticket.HasSessionIdentity() {
			sessions = addSessionTicket(sessions, ticket, currency, hasPrice)
			updateSessions = true
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, aggFieldEventID, ticket.EventID)
			if ticket.EventName != "" {
				// Set once known; a later ticket without a name never clears it.
				pipe.HSet(ctx, key, aggFieldEventName, ticket.EventName)
			}
			pipe.HIncrBy(ctx, key, aggFieldTicketsCount, 1)
			if updateRevenue {
				payload, err := json.Marshal(revenue)
				if err != nil {
					return err
				}
				pipe.HSet(ctx, key, aggFieldRevenue, payload)
			}
			if updateSessions {
				payload, err := json.Marshal(sessions)
				if err != nil {
					return err
				}
				pipe.HSet(ctx, key, aggFieldSessions, payload)
			}
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = d.Client.Watch(ctx, txn, key)
		if err != redis.TxFailedErr {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("update aggregate for event %s: %w", ticket.EventID, err)
	}
	return nil
}

// GetEventAggregate reads the aggregate of one event. A missing aggregate
// returns (nil, nil): it simply has not seen a ticket yet.
func (d *DB) GetEventAggregate(ctx context.Context, eventID string) (*models.EventAggregate, error) {
	fields, err := d.Client.HGetAll(ctx, aggregateKeyPrefix+eventID).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	count, _ := strconv.ParseInt(fields[aggFieldTicketsCount], 10, 64)
	revenue, err := decodeCurrencyAmounts(fields[aggFieldRevenue])
	if err != nil {
		return nil, fmt.Errorf("decode aggregate revenue: %w", err)
	}
	sessions, err := decodeSessions(fields[aggFieldSessions])
	if err != nil {
		return nil, fmt.Errorf("decode aggregate sessions: %w", err)
	}

	return &models.EventAggregate{
		EventID:           fields[aggFieldEventID],
		EventName:         fields[aggFieldEventName],
		TicketsCount:      count,
		RevenueByCurrency: revenue,
		Sessions:          sessions,
	}, nil
}

// addRevenue accumulates amount into the entry for currency, appending a new
// entry when the currency has not been seen before. Currencies compare
// exactly (after trimming); no case folding.
func addRevenue(revenue []models.CurrencyAmount, currency string, amount float64) []models.CurrencyAmount {
	for i := range revenue {
		if revenue[i].Currency == currency {
			revenue[i].Amount += amount
			return revenue
		}
	}
	return append(revenue, models.CurrencyAmount{Currency: currency, Amount: amount})
}

// addSessionTicket applies one ticket to the per-occurrence sub-aggregates,
// matching by the exact (date, time, locationName) triple with empty fields
// matching empty fields. Identity fields of an existing entry are kept as
// they are; a known value is never replaced.
func addSessionTicket(sessions []models.SessionAggregate, ticket models.Ticket, currency string, hasPrice bool) []models.SessionAggregate {
	for i := range sessions {
		if sessions[i].MatchesSession(ticket.SessionDate, ticket.SessionTime, ticket.VenueName) {
			sessions[i].TicketsCount++
			if hasPrice {
				sessions[i].RevenueByCurrency = addRevenue(sessions[i].RevenueByCurrency, currency, *ticket.PriceAmount)
			}
			return sessions
		}
	}

	entry := models.SessionAggregate{
		Date:         ticket.SessionDate,
		Time:         ticket.SessionTime,
		LocationName: ticket.VenueName,
		TicketsCount: 1,
	}
	if hasPrice {
		entry.RevenueByCurrency = addRevenue(nil, currency, *ticket.PriceAmount)
	}
	return append(sessions, entry)
}

func decodeCurrencyAmounts(raw string) ([]models.CurrencyAmount, error) {
	if raw == "" {
		return nil, nil
	}
	var amounts []models.CurrencyAmount
	if err := json.Unmarshal([]byte(raw), &amounts); err != nil {
		return nil, err
	}
	return amounts, nil
}

func decodeSessions(raw string) ([]models.SessionAggregate, error) {
	if raw == "" {
		return nil, nil
	}
	var sessions []models.SessionAggregate
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}
