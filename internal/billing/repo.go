package billing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mgastelum/tubedigest-backend/pkg/db/models"
)

// Repository exposes persistence helpers for billing subscription rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, subscription *models.BillingSubscription) error
	FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*models.BillingSubscription, error)
	FindLatestByUser(ctx context.Context, userID uuid.UUID) (*models.BillingSubscription, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// Upsert writes webhook-derived subscription state keyed on the Stripe
// subscription id. Redelivered or out-of-order events simply overwrite
// with the latest payload.
func (r *repositoryImpl) Upsert(ctx context.Context, subscription *models.BillingSubscription) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "stripe_subscription_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status",
				"plan_name",
				"price_id",
				"current_period_start",
				"current_period_end",
				"amount_cents",
				"cancel_at_period_end",
				"canceled_at",
				"metadata",
				"updated_at",
			}),
		}).
		Create(subscription).Error
}

func (r *repositoryImpl) FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*models.BillingSubscription, error) {
	var row models.BillingSubscription
	err := r.db.WithContext(ctx).
		First(&row, "stripe_subscription_id = ?", stripeSubscriptionID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repositoryImpl) FindLatestByUser(ctx context.Context, userID uuid.UUID) (*models.BillingSubscription, error) {
	var row models.BillingSubscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
