package audit_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"petzi-tickets/internal/audit"
	"petzi-tickets/internal/models"
)

func setupAuditLog(t *testing.T) *audit.Log {
	t.Helper()

	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	t.Cleanup(func() { sqldb.Close() })

	log := &audit.Log{Bun: bun.NewDB(sqldb, sqlitedialect.New())}
	require.NoError(t, log.Init(context.Background()))
	return log
}

func TestRecordDelivery_AndReadBack(t *testing.T) {
	log := setupAuditLog(t)
	ctx := context.Background()

	ticket := models.Ticket{
		EventType:    "ticket_created",
		EventID:      "54694",
		TicketNumber: "XXXX2941J6SABA",
		RawPayload:   map[string]interface{}{"event": "ticket_created"},
		CreatedAt:    time.Date(2024, 9, 4, 10, 21, 21, 0, time.UTC),
	}

	delivery := audit.NewDelivery(ticket, "1693932000", audit.StatusIngested)
	require.NoError(t, log.RecordDelivery(ctx, delivery))

	recent, err := log.RecentDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "ticket_created", recent[0].EventType)
	assert.Equal(t, "54694", recent[0].EventID)
	assert.Equal(t, "XXXX2941J6SABA", recent[0].TicketNumber)
	assert.Equal(t, "1693932000", recent[0].SignatureTimestamp)
	assert.Equal(t, audit.StatusIngested, recent[0].Status)
	assert.JSONEq(t, `{"event":"ticket_created"}`, recent[0].Payload)
}

func TestRecentDeliveries_NewestFirstWithLimit(t *testing.T) {
	log := setupAuditLog(t)
	ctx := context.Background()

	base := time.Date(2024, 9, 4, 10, 0, 0, 0, time.UTC)
	for i, number := range []string{"T-1", "T-2", "T-3"} {
		ticket := models.Ticket{
			TicketNumber: number,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, log.RecordDelivery(ctx, audit.NewDelivery(ticket, "1", audit.StatusIngested)))
	}

	recent, err := log.RecentDeliveries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "T-3", recent[0].TicketNumber)
	assert.Equal(t, "T-2", recent[1].TicketNumber)
}

func TestDeliveriesForTicket_TracksRedeliveries(t *testing.T) {
	log := setupAuditLog(t)
	ctx := context.Background()

	base := time.Date(2024, 9, 4, 10, 0, 0, 0, time.UTC)
	ticket := models.Ticket{TicketNumber: "T-1", CreatedAt: base}
	require.NoError(t, log.RecordDelivery(ctx, audit.NewDelivery(ticket, "1", audit.StatusFailed)))

	ticket.CreatedAt = base.Add(time.Minute)
	require.NoError(t, log.RecordDelivery(ctx, audit.NewDelivery(ticket, "2", audit.StatusIngested)))

	deliveries, err := log.DeliveriesForTicket(ctx, "T-1")
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	assert.Equal(t, audit.StatusFailed, deliveries[0].Status)
	assert.Equal(t, audit.StatusIngested, deliveries[1].Status)
}
