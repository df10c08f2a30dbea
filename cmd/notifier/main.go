// notifier consumes the ticket-events topic and logs every ingested ticket,
// a minimal downstream of the Kafka fan-out.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"petzi-tickets/internal/config"
	"petzi-tickets/internal/kafka"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.TicketEvents, cfg.Kafka.GroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		cancel()
	}()

	consumer.Start(ctx, func(event kafka.TicketEvent) {
		log.Printf("🎟️  Ticket %s ingested: event=%s (%s) buyer=%s %s",
			event.ID, event.Ticket.EventName, event.Ticket.EventID,
			event.Ticket.BuyerFirstName, event.Ticket.BuyerLastName)
	})

	log.Println("✅ Notifier stopped")
}
