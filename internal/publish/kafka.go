// Package publish pushes detected arbitrage opportunities to Kafka
// for downstream execution systems.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"dex-route-engine/internal/domain"
)

// OpportunityPublisher writes arbitrage opportunities to one Kafka
// topic, partitioned by pair key so a consumer sees one pair's
// opportunities in order.
type OpportunityPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewOpportunityPublisher creates a publisher for the given brokers
// and topic.
func NewOpportunityPublisher(brokers []string, topic string, logger *zap.Logger) *OpportunityPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // same pair always lands on the same partition
		RequiredAcks: kafka.RequireAll,
	}
	return &OpportunityPublisher{writer: writer, logger: logger}
}

// Publish writes one opportunity.
func (p *OpportunityPublisher) Publish(ctx context.Context, opp *domain.ArbitrageOpportunity) error {
	data, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("marshal opportunity: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(opp.PairKey),
		Value: data,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("write opportunity: %w", err)
	}
	p.logger.Debug("opportunity published",
		zap.String("pair", opp.PairKey),
		zap.String("buy", opp.BuySource),
		zap.String("sell", opp.SellSource),
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *OpportunityPublisher) Close() error {
	return p.writer.Close()
}
