package billing

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sangamhq/sangam/app/models"
)

// ErrNoRecord is returned by TransactionalMerge when the billing record
// disappeared between resolution and merge.
var ErrNoRecord = errors.New("billing record does not exist")

// Store is the durable-store surface the engine consumes. Lookups return
// (nil, nil) when no record matches; the engine never creates records, only
// mutates existing ones.
type Store interface {
	FindByCustomerID(ctx context.Context, customerID string) (*models.BillingRecord, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.BillingRecord, error)
	FindByUserID(ctx context.Context, userID uint) (*models.BillingRecord, error)
	FindByEmail(ctx context.Context, email string) (*models.BillingRecord, error)

	// TransactionalMerge runs apply against the current record inside a
	// single transaction, conditioned on the record still existing, and
	// persists the result. Concurrent merges on the same record serialize
	// via the store's transaction isolation.
	TransactionalMerge(ctx context.Context, userID uint, apply func(*models.BillingRecord) error) (*models.BillingRecord, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a billing record store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) FindByCustomerID(ctx context.Context, customerID string) (*models.BillingRecord, error) {
	id := strings.TrimSpace(customerID)
	if id == "" {
		return nil, nil
	}
	return s.findOne(ctx, "stripe_customer_id = ?", id)
}

func (s *gormStore) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.BillingRecord, error) {
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return nil, nil
	}
	return s.findOne(ctx, "stripe_subscription_id = ?", id)
}

func (s *gormStore) FindByUserID(ctx context.Context, userID uint) (*models.BillingRecord, error) {
	if userID == 0 {
		return nil, nil
	}
	return s.findOne(ctx, "user_id = ?", userID)
}

func (s *gormStore) FindByEmail(ctx context.Context, email string) (*models.BillingRecord, error) {
	addr := strings.ToLower(strings.TrimSpace(email))
	if addr == "" {
		return nil, nil
	}
	return s.findOne(ctx, "LOWER(email) = ?", addr)
}

func (s *gormStore) findOne(ctx context.Context, query string, arg interface{}) (*models.BillingRecord, error) {
	var rec models.BillingRecord
	err := s.db.WithContext(ctx).Where(query, arg).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *gormStore) TransactionalMerge(ctx context.Context, userID uint, apply func(*models.BillingRecord) error) (*models.BillingRecord, error) {
	var merged *models.BillingRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.BillingRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&rec).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoRecord
			}
			return err
		}
		if err := apply(&rec); err != nil {
			return err
		}
		if err := tx.Save(&rec).Error; err != nil {
			return err
		}
		merged = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}
