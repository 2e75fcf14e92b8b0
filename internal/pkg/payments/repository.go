package payments

import (
	"time"

	"github.com/pledgekit/PledgeKit/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the DB operations used by the payments service.
type Repository interface {
	CreateContribution(contribution *models.Contribution) error
	GetContributionByID(id string) (*models.Contribution, error)
	GetContributionByProviderPaymentID(providerPaymentID string) (*models.Contribution, error)
	CompleteContribution(id, providerCheckoutID, providerPaymentID string) (bool, error)
	TransitionContribution(id, fromStatus, toStatus string) (bool, error)
	GetProjectByID(id uint) (*models.Project, error)
	UpsertSubscription(sub *models.Subscription) error
	GetSubscriptionByProviderID(providerSubscriptionID string) (*models.Subscription, error)
	UpdateSubscriptionStatus(id uint, status string) error
	CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
	RecordWebhookError(id uint, processingError string) error
	ListUnprocessedWebhookEvents(limit int) ([]models.PaymentWebhookEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payments repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateContribution(contribution *models.Contribution) error {
	return r.db.Create(contribution).Error
}

func (r *gormRepository) GetContributionByID(id string) (*models.Contribution, error) {
	var contribution models.Contribution
	if err := r.db.Where("id = ?", id).First(&contribution).Error; err != nil {
		return nil, err
	}
	return &contribution, nil
}

func (r *gormRepository) GetContributionByProviderPaymentID(providerPaymentID string) (*models.Contribution, error) {
	var contribution models.Contribution
	if err := r.db.Where("provider_payment_id = ?", providerPaymentID).First(&contribution).Error; err != nil {
		return nil, err
	}
	return &contribution, nil
}

// CompleteContribution moves a pending contribution to succeeded and records
// the provider references. The status precondition lives in the WHERE clause,
// so re-applying the same event is a no-op instead of a double transition.
func (r *gormRepository) CompleteContribution(id, providerCheckoutID, providerPaymentID string) (bool, error) {
	tx := r.db.Model(&models.Contribution{}).
		Where("id = ? AND status = ?", id, models.ContributionStatusPending).
		Updates(map[string]interface{}{
			"status":               models.ContributionStatusSucceeded,
			"provider_checkout_id": providerCheckoutID,
			"provider_payment_id":  providerPaymentID,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) TransitionContribution(id, fromStatus, toStatus string) (bool, error) {
	tx := r.db.Model(&models.Contribution{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Update("status", toStatus)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) GetProjectByID(id uint) (*models.Project, error) {
	var project models.Project
	if err := r.db.Where("id = ?", id).First(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// UpsertSubscription inserts or refreshes the (project, subscriber) row. On
// MySQL the OnConflict clause compiles to ON DUPLICATE KEY UPDATE, which
// matches against any unique index regardless of Columns; the subscriptions
// table therefore keeps (project_id, subscriber_id) as its only non-PK unique
// key so the upsert can never rewrite another subscriber's row.
func (r *gormRepository) UpsertSubscription(sub *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "project_id"},
			{Name: "subscriber_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"price_cents",
			"interval",
			"status",
			"provider_subscription_id",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("project_id = ? AND subscriber_id = ?", sub.ProjectID, sub.SubscriberID).
		First(sub).Error
}

func (r *gormRepository) GetSubscriptionByProviderID(providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("provider_subscription_id = ?", providerSubscriptionID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) UpdateSubscriptionStatus(id uint, status string) error {
	return r.db.Model(&models.Subscription{}).Where("id = ?", id).
		Update("status", status).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := r.db.Where("provider_event_id = ?", event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// RecordWebhookError stores the failure but leaves processed_at null so the
// repair worker picks the event up again.
func (r *gormRepository) RecordWebhookError(id uint, processingError string) error {
	return r.db.Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).
		Update("processing_error", processingError).Error
}

func (r *gormRepository) ListUnprocessedWebhookEvents(limit int) ([]models.PaymentWebhookEvent, error) {
	var events []models.PaymentWebhookEvent
	err := r.db.Where("processed_at IS NULL").Order("id ASC").Limit(limit).Find(&events).Error
	return events, err
}
