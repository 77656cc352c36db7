package kafka

import (
	"context"
	"encoding/json"

	"github.com/maai-ai/featurizer/pkg/common/config"
	"github.com/maai-ai/featurizer/pkg/common/logger"
	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
}

// ObservationHandler processes one raw observation delivered on the
// ingestion topic.
type ObservationHandler func(ctx context.Context, obs models.RawObservation) error

func NewConsumer(topic string, groupID string) *Consumer {
	cfg := config.Load()
	if groupID == "" {
		groupID = cfg.KafkaGroupID
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{reader: reader}
}

func (c *Consumer) Consume(ctx context.Context, handler ObservationHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := c.reader.FetchMessage(ctx)
			if err != nil {
				logger.Log.WithError(err).Error("Failed to fetch message")
				continue
			}

			var obs models.RawObservation
			if err := json.Unmarshal(message.Value, &obs); err != nil {
				logger.Log.WithError(err).Error("Failed to unmarshal observation")
				c.reader.CommitMessages(ctx, message)
				continue
			}

			if err := handler(ctx, obs); err != nil {
				logger.Log.WithError(err).WithFields(map[string]interface{}{
					"encounter_id": obs.EncounterID,
					"variable":     obs.Variable,
				}).Error("Failed to process observation")
				// Don't commit on error, will retry
				continue
			}

			if err := c.reader.CommitMessages(ctx, message); err != nil {
				logger.Log.WithError(err).Error("Failed to commit message")
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
