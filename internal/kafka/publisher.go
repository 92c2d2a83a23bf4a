package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"chamber-monitor/internal/logging"
	"chamber-monitor/internal/models"
)

// Config holds broker connection settings.
type Config struct {
	Broker string
	Topic  string
}

// Publisher emits alert events to Kafka for downstream consumers
// (notification services, audit trails). Constructed only when a broker is
// configured.
type Publisher struct {
	writer *kafka.Writer
	logger *logging.Logger
}

// event is the wire shape of one alert transition.
type event struct {
	EventID   string `json:"event_id"`
	RuleID    string `json:"rule_id"`
	Title     string `json:"title"`
	Severity  string `json:"severity"`
	ValueText string `json:"value_text"`
	TS        int64  `json:"ts"`
}

// NewPublisher creates a Kafka publisher for alert events.
func NewPublisher(cfg Config, logger *logging.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Broker),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
		// the poll loop must never block on a broker outage
		Async: true,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish sends one alert transition.
func (p *Publisher) Publish(ctx context.Context, task models.Task) error {
	payload, err := json.Marshal(event{
		EventID:   task.RequestID,
		RuleID:    task.RuleID,
		Title:     task.Title,
		Severity:  task.Severity.String(),
		ValueText: task.ValueText,
		TS:        task.TS,
	})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.RuleID),
		Value: payload,
	})
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() {
	if err := p.writer.Close(); err != nil {
		p.logger.Errorf("Kafka writer close failed: %v", err)
	}
}
