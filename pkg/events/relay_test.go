package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"gorm.io/gorm"

	"github.com/lordrhodos/apicurio-studio/pkg/database"
	"github.com/lordrhodos/apicurio-studio/pkg/models"
	"github.com/lordrhodos/apicurio-studio/pkg/storage"
)

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	err     error
	closed  bool
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.mu.Lock()
	defer p.mu.Unlock()
	var results kgo.ProduceResults
	for _, r := range rs {
		if p.err == nil {
			p.records = append(p.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func (p *fakeProducer) Close() { p.closed = true }

func setupTestDB(t *testing.T) (*gorm.DB, *storage.Store) {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite}, nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.ModelsToAutoMigrate()...))
	return db, storage.New(db, nil)
}

func TestNew_Validation(t *testing.T) {
	db, _ := setupTestDB(t)

	_, err := New(Config{Brokers: []string{"localhost:9092"}, Topic: "t"})
	assert.ErrorContains(t, err, "database")
	_, err = New(Config{DB: db, Topic: "t"})
	assert.ErrorContains(t, err, "broker")
	_, err = New(Config{DB: db, Producer: &fakeProducer{}})
	assert.ErrorContains(t, err, "topic")
}

func TestRelay_ProcessBatch(t *testing.T) {
	ctx := context.Background()
	db, s := setupTestDB(t)

	d := &models.Design{Name: "Pet Store", CreatedBy: "alice"}
	require.NoError(t, s.CreateDesign(ctx, d, `{}`, "owner"))
	_, err := s.AppendCommand(ctx, d.ID, 0, `{"op":"set","path":"a","value":1}`, "alice")
	require.NoError(t, err)

	producer := &fakeProducer{}
	relay, err := New(Config{DB: db, Topic: "designs.events", Producer: producer, BatchSize: 10})
	require.NoError(t, err)

	n, err := relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, producer.records, 2)
	for _, r := range producer.records {
		assert.Equal(t, "designs.events", r.Topic)
		assert.Equal(t, d.ID.String(), string(r.Key))
	}

	var first Event
	require.NoError(t, json.Unmarshal(producer.records[0].Value, &first))
	assert.Equal(t, models.DesignEventCreated, first.EventType)
	var second Event
	require.NoError(t, json.Unmarshal(producer.records[1].Value, &second))
	assert.Equal(t, models.DesignEventCommandAppended, second.EventType)
	assert.Equal(t, models.DesignEventCommandAppended, string(producer.records[1].Headers[0].Value))

	stats, err := relay.GetStats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Published: 2}, stats)

	n, err = relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "published events are not sent twice")
}

func TestRelay_FailureAndRetry(t *testing.T) {
	ctx := context.Background()
	db, s := setupTestDB(t)

	d := &models.Design{Name: "Pet Store", CreatedBy: "alice"}
	require.NoError(t, s.CreateDesign(ctx, d, `{}`, "owner"))

	producer := &fakeProducer{err: errors.New("broker unavailable")}
	relay, err := New(Config{DB: db, Topic: "t", Producer: producer})
	require.NoError(t, err)

	n, err := relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	var entry models.DesignEventOutbox
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, models.OutboxStatusFailed, entry.Status)
	assert.Equal(t, 1, entry.PublishAttempts)
	assert.Contains(t, entry.LastError, "broker unavailable")

	producer.err = nil
	requeued, err := relay.RetryFailed(10)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)

	n, err = relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := relay.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Published)
	assert.Zero(t, stats.Failed)
}

func TestRelay_CleanupOldEntries(t *testing.T) {
	ctx := context.Background()
	db, s := setupTestDB(t)

	d := &models.Design{Name: "Pet Store", CreatedBy: "alice"}
	require.NoError(t, s.CreateDesign(ctx, d, `{}`, "owner"))

	relay, err := New(Config{DB: db, Topic: "t", Producer: &fakeProducer{}})
	require.NoError(t, err)
	_, err = relay.ProcessBatch(ctx)
	require.NoError(t, err)

	deleted, err := relay.CleanupOldEntries(time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	old := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, db.Model(&models.DesignEventOutbox{}).Where("1 = 1").Update("published_at", old).Error)

	deleted, err = relay.CleanupOldEntries(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestRelay_StartStop(t *testing.T) {
	db, _ := setupTestDB(t)
	producer := &fakeProducer{}
	relay, err := New(Config{DB: db, Topic: "t", Producer: producer, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- relay.Start(context.Background()) }()
	time.Sleep(30 * time.Millisecond)
	relay.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}
	assert.True(t, producer.closed)
}
