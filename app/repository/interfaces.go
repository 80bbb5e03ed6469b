package repository

import (
	"github.com/ManuelReschke/CartFox/app/models"
)

// ProductRepository defines the interface for product-related database operations
type ProductRepository interface {
	Create(product *models.Product) error
	GetByID(id uint) (*models.Product, error)
	GetByUUID(uuid string) (*models.Product, error)
	Update(product *models.Product) error
	List(offset, limit int) ([]models.Product, error)
	Count() (int64, error)
	// DecrementStock atomically decrements stock iff stock >= quantity.
	// Returns ErrInsufficientStock otherwise; stock never goes negative.
	DecrementStock(productID uint, quantity int) error
}

// OrderRepository defines the interface for order-related database operations
type OrderRepository interface {
	Create(order *models.Order) error
	GetByID(id uint) (*models.Order, error)
	GetByUUID(uuid string) (*models.Order, error)
	GetByPaymentTransaction(method, transactionID string) (*models.Order, error)
	ListByUserID(userID uint, offset, limit int) ([]models.Order, error)
	Count() (int64, error)
}

// WebhookEventRepository defines the interface for the idempotency ledger
type WebhookEventRepository interface {
	// CreateIfNotExists inserts the event unless (provider, provider_event_id)
	// already exists. Returns created=false on a duplicate, relying on the
	// storage-level unique index so concurrent inserts cannot both win.
	CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	Exists(provider, providerEventID string) (bool, error)
	GetByProviderEventID(provider, providerEventID string) (*models.WebhookEvent, error)
	// MarkProcessed flags the event handled; note explains a no-fulfillment
	// outcome and stays empty for fulfilled events.
	MarkProcessed(id uint, note string) error
}
