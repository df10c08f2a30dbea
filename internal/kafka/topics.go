package kafka

import (
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// CreateTopicIfNotExists bootstraps the ticket-events topic on the cluster
// controller. Single partition: ordering per document id is all the
// downstream consumers rely on.
func CreateTopicIfNotExists(brokers []string, topic string) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			log.Printf("Topic %s already exists", topic)
			return nil
		}
		return err
	}

	log.Printf("Created topic: %s", topic)
	// Give the cluster a moment before producers attach.
	time.Sleep(1 * time.Second)
	return nil
}
