package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"listing-ingest-service/internal/contextkeys"
	"listing-ingest-service/internal/core/domain"
	"listing-ingest-service/internal/core/port"
)

// RunReportPublisher delivers the final run report to a fanout
// exchange so downstream consumers can watch ingestion health.
type RunReportPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewRunReportPublisher(url, exchange string) (*RunReportPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("rabbitmq adapter: url cannot be empty")
	}
	if exchange == "" {
		return nil, fmt.Errorf("rabbitmq adapter: exchange cannot be empty")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq adapter: failed to connect: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq adapter: failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq adapter: failed to declare exchange %s: %w", exchange, err)
	}

	return &RunReportPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *RunReportPublisher) ReportRun(ctx context.Context, rep domain.RunReport) error {
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component": "RunReportPublisher",
		"exchange":  p.exchange,
	})

	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("rabbitmq adapter: failed to marshal run report: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      make(amqp.Table),
	}

	if runID := contextkeys.RunIDFromContext(ctx); runID != "" {
		msg.Headers["x-run-id"] = runID
	}

	publishCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.channel.PublishWithContext(publishCtx, p.exchange, "", false, false, msg); err != nil {
		logger.Error("failed to publish run report", err, nil)
		return fmt.Errorf("rabbitmq adapter: failed to publish run report: %w", err)
	}

	logger.Info("run report published", nil)
	return nil
}

func (p *RunReportPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
