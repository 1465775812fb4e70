package billing

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sangamhq/sangam/app/models"
)

// Ledger records which provider event ids have already been applied. It is an
// optimization that suppresses redundant work and duplicate notifications;
// the real safety under races comes from the merge policy being idempotent
// per field, not from the ledger acting as a mutex.
type Ledger interface {
	AlreadyProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string) error
	PruneExpired(ctx context.Context) (int64, error)
}

type gormLedger struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewLedger creates an idempotency ledger backed by GORM.
func NewLedger(db *gorm.DB) Ledger {
	return &gormLedger{db: db, ttl: models.DefaultProcessedEventTTL}
}

func (l *gormLedger) AlreadyProcessed(ctx context.Context, eventID string) (bool, error) {
	id := strings.TrimSpace(eventID)
	if id == "" {
		return false, nil
	}
	var count int64
	err := l.db.WithContext(ctx).
		Model(&models.BillingProcessedEvent{}).
		Where("event_id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (l *gormLedger) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	id := strings.TrimSpace(eventID)
	if id == "" {
		return nil
	}
	record := &models.BillingProcessedEvent{
		EventID:   id,
		EventType: strings.TrimSpace(eventType),
		ExpiresAt: time.Now().Add(l.ttl),
	}
	// Conditional create: a concurrent handler marking the same event id must
	// also succeed, so an existing row is not an error.
	return l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(record).Error
}

func (l *gormLedger) PruneExpired(ctx context.Context) (int64, error) {
	tx := l.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&models.BillingProcessedEvent{})
	return tx.RowsAffected, tx.Error
}
