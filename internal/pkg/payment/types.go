package payment

import (
	"fmt"

	"github.com/ManuelReschke/CartFox/app/models"
)

// Line is one ordered position as carried in the provider's checkout
// metadata. Unit price is in minor units and was validated at
// checkout-initiation time; the pipeline only re-checks stock.
type Line struct {
	ProductID uint  `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

// Fact is the provider-agnostic result of normalizing a webhook payload.
// Succeeded=false means the event was recognized but is not a fulfillment
// trigger (failed, pending, requires-action, ...); Note says why.
type Fact struct {
	Succeeded     bool
	UserID        *uint
	Email         string
	Lines         []Line
	TotalAmount   int64 // minor units
	TransactionID string
	Currency      string
	Note          string
}

// Normalize dispatches to the provider-specific normalizer. Adding a new
// payment provider means adding one case here plus its normalizer file.
func Normalize(provider, eventType string, payload []byte) (*Fact, error) {
	switch provider {
	case models.PaymentProviderStripe:
		return NormalizeStripeEvent(eventType, payload)
	case models.PaymentProviderRazorpay:
		return NormalizeRazorpayEvent(eventType, payload)
	default:
		return nil, fmt.Errorf("unknown payment provider: %s", provider)
	}
}
