// Package live exposes the dashboard-facing read API: continuous callback
// subscriptions over the ticket collection. Each Subscribe call registers a
// callback, pushes the current snapshot, re-pushes on every store change and
// returns an unsubscribe function. Subscriptions fail soft: when the store
// is unreachable the callback receives an empty result and the error, and
// the returned unsubscribe is a safe no-op.
package live

import (
	"context"
	"errors"
	"log"
	"sync"

	"petzi-tickets/internal/tickets/db"
)

// ErrStoreNotConfigured is handed to callbacks when a subscription is opened
// against a service without a store, mirroring the fail-soft contract.
var ErrStoreNotConfigured = errors.New("ticket store is not configured")

// defaultInitialLimit is the size of the backlog window used to establish
// the new-sales watermark.
const defaultInitialLimit = 25

// Callback receives the full query result on every change. err is non-nil
// when the underlying read failed; results are empty in that case.
type Callback func(tickets []db.StoredTicket, err error)

// SaleCallback receives exactly one notification per genuinely new ticket.
type SaleCallback func(ticket db.StoredTicket)

// UnsubscribeFunc cancels a subscription. Synchronous and idempotent:
// calling it twice is a no-op, and no callback fires after it returns.
type UnsubscribeFunc func()

// TicketStore is the slice of the store layer the live queries need.
type TicketStore interface {
	ListAllTickets(ctx context.Context) ([]db.StoredTicket, error)
	ListEventTickets(ctx context.Context, eventID string) ([]db.StoredTicket, error)
	ListSessionTickets(ctx context.Context, sessionDate string) ([]db.StoredTicket, error)
	ListNewestTickets(ctx context.Context, n int64) ([]db.StoredTicket, error)
	GetTicketByID(ctx context.Context, id string) (*db.StoredTicket, error)
	SubscribeChanges(ctx context.Context) (<-chan db.ChangeMessage, func(), error)
}

// NewSalesOptions tunes the new-sales subscription.
type NewSalesOptions struct {
	// InitialLimit overrides the watermark window size; <= 0 keeps the
	// service default.
	InitialLimit int
}

type Service struct {
	Store        TicketStore
	Logger       *log.Logger
	InitialLimit int // default watermark window for new-sales subscriptions
}

func NewService(store TicketStore, initialLimit int) *Service {
	if initialLimit <= 0 {
		initialLimit = defaultInitialLimit
	}
	return &Service{
		Store:        store,
		Logger:       log.Default(),
		InitialLimit: initialLimit,
	}
}

// SubscribeAllTickets pushes every ticket, newest first.
func (s *Service) SubscribeAllTickets(callback Callback) UnsubscribeFunc {
	return s.subscribeQuery(callback, func(ctx context.Context) ([]db.StoredTicket, error) {
		return s.Store.ListAllTickets(ctx)
	})
}

// SubscribeEventTickets pushes the tickets of one event, oldest first.
func (s *Service) SubscribeEventTickets(eventID string, callback Callback) UnsubscribeFunc {
	return s.subscribeQuery(callback, func(ctx context.Context) ([]db.StoredTicket, error) {
		return s.Store.ListEventTickets(ctx, eventID)
	})
}

// SubscribeSessionTickets pushes the tickets of one session date
// ("YYYY-MM-DD"), oldest first.
func (s *Service) SubscribeSessionTickets(sessionDate string, callback Callback) UnsubscribeFunc {
	return s.subscribeQuery(callback, func(ctx context.Context) ([]db.StoredTicket, error) {
		return s.Store.ListSessionTickets(ctx, sessionDate)
	})
}

func (s *Service) subscribeQuery(callback Callback, query func(ctx context.Context) ([]db.StoredTicket, error)) UnsubscribeFunc {
	if s.Store == nil {
		callback([]db.StoredTicket{}, ErrStoreNotConfigured)
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())

	changes, stop, err := s.Store.SubscribeChanges(ctx)
	if err != nil {
		cancel()
		callback([]db.StoredTicket{}, err)
		return func() {}
	}

	push := func() {
		tickets, err := query(ctx)
		if ctx.Err() != nil {
			return // cancelled mid-read, stay silent
		}
		if err != nil {
			s.logf("live query failed: %v", err)
			callback([]db.StoredTicket{}, err)
			return
		}
		callback(tickets, nil)
	}

	go func() {
		push()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				push()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			stop()
		})
	}
}

// SubscribeNewTicketSales notifies onSale for each ticket added after the
// subscription was established. The current newest-N backlog is consumed
// silently to set a watermark and seed the de-duplication set, so store
// re-syncs and backfills with older timestamps never fire a notification
// and no document is notified twice.
func (s *Service) SubscribeNewTicketSales(onSale SaleCallback, options NewSalesOptions) UnsubscribeFunc {
	if s.Store == nil {
		s.logf("new-sales subscription without a configured store")
		return func() {}
	}

	limit := options.InitialLimit
	if limit <= 0 {
		limit = s.InitialLimit
	}
	if limit < 1 {
		limit = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	changes, stop, err := s.Store.SubscribeChanges(ctx)
	if err != nil {
		cancel()
		s.logf("new-sales subscription failed: %v", err)
		return func() {}
	}

	backlog, err := s.Store.ListNewestTickets(ctx, int64(limit))
	if err != nil {
		cancel()
		stop()
		s.logf("new-sales backlog read failed: %v", err)
		return func() {}
	}

	var latestCreatedAtMs int64
	notified := make(map[string]bool, len(backlog))
	for _, ticket := range backlog {
		if ms := ticket.CreatedAt.UnixMilli(); ms > latestCreatedAtMs {
			latestCreatedAtMs = ms
		}
		notified[ticket.ID] = true
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-changes:
				if !ok {
					return
				}
				if change.Type != db.ChangeAdded {
					continue
				}
				if notified[change.ID] {
					continue
				}
				// Additions at or below the watermark are re-sync noise,
				// not new sales.
				if change.CreatedAtMs != 0 && change.CreatedAtMs <= latestCreatedAtMs {
					notified[change.ID] = true
					continue
				}

				ticket, err := s.Store.GetTicketByID(ctx, change.ID)
				if err != nil {
					s.logf("new-sales fetch for %s failed: %v", change.ID, err)
					continue
				}

				if change.CreatedAtMs > latestCreatedAtMs {
					latestCreatedAtMs = change.CreatedAtMs
				}
				notified[change.ID] = true
				onSale(*ticket)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			stop()
		})
	}
}

func (s *Service) logf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf("LIVE: "+format, args...)
	}
}
