package models

import "time"

// WebhookStat holds per-provider pipeline counters, flushed periodically
// from Redis by the queue manager.
type WebhookStat struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Provider   string    `gorm:"type:varchar(20);not null;uniqueIndex" json:"provider"`
	Received   int64     `gorm:"not null;default:0" json:"received"`
	Duplicates int64     `gorm:"not null;default:0" json:"duplicates"`
	Rejected   int64     `gorm:"not null;default:0" json:"rejected"`
	Fulfilled  int64     `gorm:"not null;default:0" json:"fulfilled"`
	Failed     int64     `gorm:"not null;default:0" json:"failed"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
