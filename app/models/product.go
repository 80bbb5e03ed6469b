package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Product carries the stock counter the fulfillment worker decrements.
// Stock is mutated only by admin edits and the worker's decrement step and
// may never go negative.
type Product struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UUID        string         `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	Name        string         `gorm:"type:varchar(200);not null" json:"name" validate:"required,min=2,max=200"`
	Description string         `gorm:"type:text" json:"description"`
	Price       int64          `gorm:"not null;default:0" json:"price" validate:"gte=0"` // minor units
	Currency    string         `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency" validate:"len=3"`
	Stock       int            `gorm:"not null;default:0" json:"stock" validate:"gte=0"`
	IsActive    bool           `gorm:"default:true;index" json:"is_active"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Product) Validate() error {
	v := validator.New()

	return v.Struct(p)
}
