package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/maai-ai/featurizer/pkg/common/config"
	"github.com/maai-ai/featurizer/pkg/common/logger"
	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/segmentio/kafka-go"
)

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(topic string) *Producer {
	cfg := config.Load()
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{writer: writer}
}

// PublishFeatureRow emits one finished per-hour feature row, keyed by
// encounter so a partition preserves hour order within an encounter.
func (p *Producer) PublishFeatureRow(ctx context.Context, runID string, rec *models.HourlyRecord) error {
	payload := struct {
		RunID string               `json:"run_id"`
		Row   *models.HourlyRecord `json:"row"`
	}{RunID: runID, Row: rec}

	rowBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal feature row: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(rec.EncounterID),
		Value: rowBytes,
		Headers: []kafka.Header{
			{Key: "run-id", Value: []byte(runID)},
			{Key: "encounter-id", Value: []byte(rec.EncounterID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"run_id":       runID,
			"encounter_id": rec.EncounterID,
			"hour_index":   rec.Hour,
		}).Error("Failed to publish feature row")
		return err
	}

	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
