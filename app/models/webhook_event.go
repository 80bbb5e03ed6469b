package models

import "time"

const (
	PaymentProviderStripe   = "stripe"
	PaymentProviderRazorpay = "razorpay"
)

// WebhookEvent is the idempotency ledger: one row per provider webhook event
// ever accepted by the fulfillment pipeline. Rows are never deleted; the
// processing outcome is recorded on the row itself. The composite unique
// index on (provider, provider_event_id) is the authoritative duplicate
// guard and must exist at the storage layer because concurrent workers can
// race on the insert.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;index:ux_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	Signature       string     `gorm:"type:varchar(512);not null;default:''" json:"signature"`
	Processed       bool       `gorm:"default:false;index" json:"processed"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	// Note records why a recognized event triggered no fulfillment (e.g. a
	// failed-payment type). Kept apart from ProcessingError so that column
	// stays an unambiguous failure signal for ops queries.
	Note string `gorm:"type:varchar(255);not null;default:''" json:"note"`
	ReceivedAt      time.Time  `gorm:"autoCreateTime;index" json:"received_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
