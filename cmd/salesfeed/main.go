// salesfeed tails the new-sales live subscription on the terminal: it is
// the same read path the dashboard uses for its "new sale" notifications.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"petzi-tickets/internal/config"
	"petzi-tickets/internal/tickets/db"
	"petzi-tickets/internal/tickets/live"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis at %s: %v", cfg.Redis.Addr, err)
	}
	defer client.Close()

	store := &db.DB{Client: client}
	liveService := live.NewService(store, cfg.Live.NewSalesInitialLimit)

	unsubscribe := liveService.SubscribeNewTicketSales(func(ticket db.StoredTicket) {
		price := ticket.PriceAmountRaw
		if price == "" {
			price = "-"
		}
		log.Printf("💸 New sale: %s | event %s (%s) | %s %s",
			ticket.ID, ticket.EventName, ticket.EventID, price, ticket.PriceCurrency)
	}, live.NewSalesOptions{})
	defer unsubscribe()

	log.Println("🔄 Watching for new ticket sales (Ctrl-C to stop)...")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("✅ Sales feed stopped")
}
