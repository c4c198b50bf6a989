package models

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/lordrhodos/apicurio-studio/pkg/designid"
)

// DesignEventOutbox holds design events written in the same transaction as
// the change that caused them. The events relay publishes pending rows.
type DesignEventOutbox struct {
	ID uint `gorm:"primaryKey" json:"id"`

	DesignID designid.ID `gorm:"type:varchar(36);not null;index:idx_design_outbox_design_id" json:"designId"`

	// IdempotentKey is {design_id}:{event_type}:{content_hash}.
	IdempotentKey string `gorm:"type:varchar(200);not null;uniqueIndex" json:"idempotentKey"`
	ContentHash   string `gorm:"type:varchar(64);not null" json:"contentHash"`

	EventType string                 `gorm:"type:varchar(50);not null" json:"eventType"`
	Payload   map[string]interface{} `gorm:"serializer:json;type:text;not null" json:"payload"`

	Status          string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_design_outbox_status" json:"status"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`
	PublishAttempts int        `gorm:"default:0" json:"publishAttempts"`
	LastError       string     `gorm:"type:text" json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name.
func (DesignEventOutbox) TableName() string {
	return "design_event_outbox"
}

// Design event types.
const (
	DesignEventCreated         = "design.created"
	DesignEventDeleted         = "design.deleted"
	DesignEventCommandAppended = "command.appended"
	DesignEventRebased         = "design.rebased"
	DesignEventPublished       = "design.published"
)

// Outbox statuses.
const (
	OutboxStatusPending   = "pending"
	OutboxStatusPublished = "published"
	OutboxStatusFailed    = "failed"
)

// ComputeContentHash returns the hex SHA-256 of the JSON form of payload.
func ComputeContentHash(payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}

// NewDesignEvent builds a pending outbox entry.
func NewDesignEvent(designID designid.ID, eventType string, payload map[string]interface{}) (*DesignEventOutbox, error) {
	if designID.IsZero() {
		return nil, fmt.Errorf("design id is required")
	}
	hash, err := ComputeContentHash(payload)
	if err != nil {
		return nil, err
	}
	return &DesignEventOutbox{
		DesignID:      designID,
		IdempotentKey: fmt.Sprintf("%s:%s:%s", designID, eventType, hash),
		ContentHash:   hash,
		EventType:     eventType,
		Payload:       payload,
		Status:        OutboxStatusPending,
	}, nil
}

// BeforeCreate rejects incomplete entries.
func (o *DesignEventOutbox) BeforeCreate(tx *gorm.DB) error {
	switch {
	case o.DesignID.IsZero():
		return fmt.Errorf("design_id is required")
	case o.EventType == "":
		return fmt.Errorf("event_type is required")
	case o.Payload == nil:
		return fmt.Errorf("payload is required")
	case o.IdempotentKey == "":
		return fmt.Errorf("idempotent_key is required")
	}
	if o.Status == "" {
		o.Status = OutboxStatusPending
	}
	return nil
}

// FindPendingDesignEvents returns the oldest pending entries.
func FindPendingDesignEvents(db *gorm.DB, limit int) ([]DesignEventOutbox, error) {
	var entries []DesignEventOutbox
	err := db.
		Where("status = ?", OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// FindFailedDesignEvents returns failed entries, most recently failed first.
func FindFailedDesignEvents(db *gorm.DB, limit int) ([]DesignEventOutbox, error) {
	var entries []DesignEventOutbox
	err := db.
		Where("status = ?", OutboxStatusFailed).
		Order("updated_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// MarkAsPublished records a successful publish.
func (o *DesignEventOutbox) MarkAsPublished(db *gorm.DB) error {
	now := time.Now().UTC()
	o.Status = OutboxStatusPublished
	o.PublishedAt = &now
	return db.Model(o).Updates(map[string]interface{}{
		"status":       OutboxStatusPublished,
		"published_at": now,
		"updated_at":   now,
	}).Error
}

// MarkAsFailed records a failed publish attempt.
func (o *DesignEventOutbox) MarkAsFailed(db *gorm.DB, cause error) error {
	o.PublishAttempts++
	o.Status = OutboxStatusFailed
	o.LastError = cause.Error()
	return db.Model(o).Updates(map[string]interface{}{
		"status":           OutboxStatusFailed,
		"publish_attempts": o.PublishAttempts,
		"last_error":       o.LastError,
		"updated_at":       time.Now().UTC(),
	}).Error
}

// Retry puts a failed entry back in the pending queue.
func (o *DesignEventOutbox) Retry(db *gorm.DB) error {
	o.Status = OutboxStatusPending
	o.LastError = ""
	return db.Model(o).Updates(map[string]interface{}{
		"status":     OutboxStatusPending,
		"last_error": "",
		"updated_at": time.Now().UTC(),
	}).Error
}

// DeletePublishedDesignEvents removes entries published before olderThan ago.
func DeletePublishedDesignEvents(db *gorm.DB, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res := db.
		Where("status = ? AND published_at < ?", OutboxStatusPublished, cutoff).
		Delete(&DesignEventOutbox{})
	return res.RowsAffected, res.Error
}

// CountDesignEventsByStatus counts entries in the given status.
func CountDesignEventsByStatus(db *gorm.DB, status string) (int64, error) {
	var n int64
	err := db.Model(&DesignEventOutbox{}).
		Where("status = ?", status).
		Count(&n).Error
	return n, err
}
