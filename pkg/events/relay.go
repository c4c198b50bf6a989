// Package events relays design events from the transactional outbox to
// Kafka-compatible brokers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"
	"gorm.io/gorm"

	"github.com/lordrhodos/apicurio-studio/pkg/models"
)

// Producer publishes records synchronously. *kgo.Client implements it.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Relay polls the design_event_outbox table and publishes pending events.
type Relay struct {
	db           *gorm.DB
	producer     Producer
	topic        string
	logger       hclog.Logger
	pollInterval time.Duration
	batchSize    int
	stopCh       chan struct{}
}

// Config holds configuration for the relay.
type Config struct {
	DB *gorm.DB

	Brokers []string
	Topic   string

	// Producer overrides the Kafka client built from Brokers.
	Producer Producer

	PollInterval time.Duration // default 1s
	BatchSize    int           // default 100

	Logger hclog.Logger
}

// New creates a new outbox relay.
func New(cfg Config) (*Relay, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Producer == nil && len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	if cfg.PollInterval == 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	producer := cfg.Producer
	if producer == nil {
		client, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Brokers...),
			kgo.DefaultProduceTopic(cfg.Topic),
			kgo.RequiredAcks(kgo.AllISRAcks()),
			kgo.ProducerBatchCompression(kgo.GzipCompression()),
			kgo.RetryBackoffFn(func(tries int) time.Duration {
				backoff := time.Duration(tries) * 100 * time.Millisecond
				if backoff > 60*time.Second {
					backoff = 60 * time.Second
				}
				return backoff
			}),
			kgo.RequestRetries(10),
			kgo.ProducerLinger(10*time.Millisecond),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka client: %w", err)
		}
		producer = client
	}

	return &Relay{
		db:           cfg.DB,
		producer:     producer,
		topic:        cfg.Topic,
		logger:       cfg.Logger.Named("events-relay"),
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		stopCh:       make(chan struct{}),
	}, nil
}

// Start runs the polling loop until Stop is called or ctx is done.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting events relay",
		"poll_interval", r.pollInterval,
		"batch_size", r.batchSize,
		"topic", r.topic,
	)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("events relay stopped by context")
			return ctx.Err()

		case <-r.stopCh:
			r.logger.Info("events relay stopped")
			return nil

		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil {
				r.logger.Error("failed to process outbox batch", "error", err)
			}
		}
	}
}

// Stop stops the polling loop and closes the producer.
func (r *Relay) Stop() {
	close(r.stopCh)
	r.producer.Close()
}

// ProcessBatch publishes one batch of pending events in outbox order and
// returns how many were published.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	entries, err := models.FindPendingDesignEvents(r.db.WithContext(ctx), r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find pending outbox entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	published := 0
	for i := range entries {
		entry := &entries[i]
		if err := r.publishEntry(ctx, entry); err != nil {
			r.logger.Error("failed to publish outbox entry",
				"outbox_id", entry.ID,
				"design_id", entry.DesignID,
				"event_type", entry.EventType,
				"error", err,
			)
			if markErr := entry.MarkAsFailed(r.db, err); markErr != nil {
				r.logger.Error("failed to mark outbox entry as failed", "outbox_id", entry.ID, "error", markErr)
			}
			continue
		}

		if err := entry.MarkAsPublished(r.db); err != nil {
			r.logger.Error("failed to mark outbox entry as published", "outbox_id", entry.ID, "error", err)
			continue
		}
		published++
	}

	r.logger.Info("processed outbox batch",
		"total", len(entries),
		"published", published,
		"failed", len(entries)-published,
	)
	return published, nil
}

func (r *Relay) publishEntry(ctx context.Context, entry *models.DesignEventOutbox) error {
	value, err := json.Marshal(NewEvent(entry))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Keyed by design so each design's events stay ordered on one partition.
	record := &kgo.Record{
		Topic: r.topic,
		Key:   []byte(entry.DesignID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(entry.EventType)},
			{Key: "idempotent_key", Value: []byte(entry.IdempotentKey)},
		},
	}
	if err := r.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish to kafka: %w", err)
	}

	r.logger.Debug("published event",
		"outbox_id", entry.ID,
		"design_id", entry.DesignID,
		"event_type", entry.EventType,
	)
	return nil
}

// CleanupOldEntries removes events published more than olderThan ago.
func (r *Relay) CleanupOldEntries(olderThan time.Duration) (int64, error) {
	deleted, err := models.DeletePublishedDesignEvents(r.db, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old outbox entries: %w", err)
	}
	r.logger.Info("cleaned up old outbox entries", "deleted", deleted, "older_than", olderThan)
	return deleted, nil
}

// RetryFailed puts up to limit failed events back in the pending queue. The
// next batch publishes them.
func (r *Relay) RetryFailed(limit int) (int, error) {
	failed, err := models.FindFailedDesignEvents(r.db, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed outbox entries: %w", err)
	}

	n := 0
	for i := range failed {
		if err := failed[i].Retry(r.db); err != nil {
			r.logger.Error("failed to reset outbox entry", "outbox_id", failed[i].ID, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		r.logger.Info("requeued failed outbox entries", "count", n)
	}
	return n, nil
}

// GetStats returns counts of outbox entries per status.
func (r *Relay) GetStats() (Stats, error) {
	var stats Stats
	for status, dst := range map[string]*int64{
		models.OutboxStatusPending:   &stats.Pending,
		models.OutboxStatusPublished: &stats.Published,
		models.OutboxStatusFailed:    &stats.Failed,
	} {
		n, err := models.CountDesignEventsByStatus(r.db, status)
		if err != nil {
			return stats, err
		}
		*dst = n
	}
	return stats, nil
}

// Event is the message published for each outbox entry.
type Event struct {
	ID          uint                   `json:"id"`
	DesignID    string                 `json:"designId"`
	EventType   string                 `json:"eventType"`
	ContentHash string                 `json:"contentHash"`
	Payload     map[string]interface{} `json:"payload"`
	Timestamp   time.Time              `json:"timestamp"`
}

// NewEvent builds the published form of entry.
func NewEvent(entry *models.DesignEventOutbox) Event {
	return Event{
		ID:          entry.ID,
		DesignID:    entry.DesignID.String(),
		EventType:   entry.EventType,
		ContentHash: entry.ContentHash,
		Payload:     entry.Payload,
		Timestamp:   entry.CreatedAt,
	}
}

// Stats contains outbox counts per status.
type Stats struct {
	Pending   int64 `json:"pending"`
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}
