package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mgastelum/tubedigest-backend/pkg/db/models"
)

// Repository exposes user persistence operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, updates map[string]any) error
	SetVerification(ctx context.Context, id uuid.UUID, number, hash string, sentAt time.Time) error
	MarkWhatsAppValidated(ctx context.Context, id uuid.UUID) error
	ConsumeSummaryCredit(ctx context.Context, id uuid.UUID) (bool, error)
	RefundSummaryCredit(ctx context.Context, id uuid.UUID) error
	ListQuotaResetDue(ctx context.Context, now time.Time, limit int) ([]models.User, error)
	ResetQuota(ctx context.Context, id uuid.UUID, nextReset time.Time) error
	ExportSubscriptions(ctx context.Context, userID uuid.UUID) ([]models.UserChannel, error)
	ExportNotifications(ctx context.Context, userID uuid.UUID) ([]models.VideoNotification, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a users repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repositoryImpl) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repositoryImpl) FindByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repositoryImpl) UpdateProfile(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repositoryImpl) SetVerification(ctx context.Context, id uuid.UUID, number, hash string, sentAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"whatsapp_number":      number,
			"whatsapp_validated":   false,
			"verification_hash":    hash,
			"verification_sent_at": sentAt,
		}).Error
}

func (r *repositoryImpl) MarkWhatsAppValidated(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"whatsapp_validated":   true,
			"verification_hash":    nil,
			"verification_sent_at": nil,
		}).Error
}

// ConsumeSummaryCredit spends one credit with a conditional UPDATE so
// concurrent fan-out workers can never overspend the limit.
func (r *repositoryImpl) ConsumeSummaryCredit(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND monthly_summary_used < monthly_summary_limit + extra_summaries", id).
		UpdateColumn("monthly_summary_used", gorm.Expr("monthly_summary_used + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RefundSummaryCredit gives back a credit spent on work that was
// subsequently rolled back. The guard keeps the counter at zero or above.
func (r *repositoryImpl) RefundSummaryCredit(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND monthly_summary_used > 0", id).
		UpdateColumn("monthly_summary_used", gorm.Expr("monthly_summary_used - 1")).Error
}

func (r *repositoryImpl) ListQuotaResetDue(ctx context.Context, now time.Time, limit int) ([]models.User, error) {
	var due []models.User
	err := r.db.WithContext(ctx).
		Where("summary_reset_date <= ?", now).
		Order("summary_reset_date ASC").
		Limit(limit).
		Find(&due).Error
	return due, err
}

func (r *repositoryImpl) ResetQuota(ctx context.Context, id uuid.UUID, nextReset time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"monthly_summary_used": 0,
			"summary_reset_date":   nextReset,
		}).Error
}

func (r *repositoryImpl) ExportSubscriptions(ctx context.Context, userID uuid.UUID) ([]models.UserChannel, error) {
	var subs []models.UserChannel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&subs).Error
	return subs, err
}

func (r *repositoryImpl) ExportNotifications(ctx context.Context, userID uuid.UUID) ([]models.VideoNotification, error) {
	var rows []models.VideoNotification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// Delete removes the user row; user-owned rows go with it via FK cascade.
func (r *repositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id).Error
}
