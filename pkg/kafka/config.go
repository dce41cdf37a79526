// Package kafka resolves broker connection settings for the relay and
// routing agents. Environment variables win over the configuration file,
// which wins over built-in defaults, so containerized deployments can
// retarget brokers without editing config.
package kafka

import (
	"os"
	"strings"

	"github.com/niranworks/compass/pkg/router/config"
)

// GetBrokers returns the Kafka/Redpanda broker addresses.
func GetBrokers(cfg *config.Config) []string {
	if brokers := os.Getenv("COMPASS_KAFKA_BROKERS"); brokers != "" {
		parts := strings.Split(brokers, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	if cfg != nil && cfg.Kafka != nil && len(cfg.Kafka.Brokers) > 0 {
		return cfg.Kafka.Brokers
	}

	return []string{"localhost:19092"}
}

// GetDocumentTopic returns the topic carrying document routing events.
func GetDocumentTopic(cfg *config.Config) string {
	if topic := os.Getenv("COMPASS_KAFKA_TOPIC"); topic != "" {
		return topic
	}

	if cfg != nil && cfg.Kafka != nil && cfg.Kafka.Topic != "" {
		return cfg.Kafka.Topic
	}

	return "compass.documents"
}

// GetConsumerGroup returns the consumer group for routing agents.
func GetConsumerGroup(cfg *config.Config) string {
	if group := os.Getenv("COMPASS_KAFKA_GROUP"); group != "" {
		return group
	}

	if cfg != nil && cfg.Kafka != nil && cfg.Kafka.ConsumerGroup != "" {
		return cfg.Kafka.ConsumerGroup
	}

	return "compass-routing-agents"
}
