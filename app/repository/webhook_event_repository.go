package repository

import (
	"errors"
	"time"

	"github.com/ManuelReschke/CartFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a ledger repository. Pass a transaction
// handle to scope all operations to that transaction.
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	if created {
		return true, event, nil
	}

	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return false, &stored, nil
}

func (r *webhookEventRepository) Exists(provider, providerEventID string) (bool, error) {
	var event models.WebhookEvent
	err := r.db.Select("id").
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *webhookEventRepository) GetByProviderEventID(provider, providerEventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := r.db.Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *webhookEventRepository) MarkProcessed(id uint, note string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed":    true,
		"processed_at": &now,
		"note":         note,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
