package models

import "time"

// User is the owner reference for non-guest orders. Authentication and
// session handling live outside this service; the pipeline only trusts the
// user id carried in the checkout metadata.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(150)" json:"name"`
	Email     string    `gorm:"uniqueIndex;type:varchar(200)" json:"email"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
