package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type stripeEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
			Metadata struct {
				UserID     string `json:"user_id"`
				Email      string `json:"email"`
				OrderItems string `json:"order_items"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ExtractStripeEventInfo reads the event id and type from the raw body
// without interpreting the rest of the payload. Stripe-style providers
// carry both inside the JSON envelope rather than in headers.
func ExtractStripeEventInfo(payload []byte) (eventID, eventType string, err error) {
	var raw stripeEnvelope
	if err := json.Unmarshal(payload, &raw); err != nil {
		return "", "", err
	}
	eventID = strings.TrimSpace(raw.ID)
	eventType = strings.TrimSpace(raw.Type)
	if eventID == "" {
		return "", "", errors.New("stripe event payload missing id")
	}
	if eventType == "" {
		return "", "", errors.New("stripe event payload missing type")
	}
	return eventID, eventType, nil
}

// NormalizeStripeEvent maps a Stripe-style event onto the provider-agnostic
// Fact. Only payment_intent.succeeded produces a success fact; every other
// recognized type is recorded as seen but triggers no fulfillment.
func NormalizeStripeEvent(eventType string, payload []byte) (*Fact, error) {
	switch eventType {
	case "payment_intent.succeeded":
		// fallthrough to full parse below
	case "payment_intent.payment_failed",
		"payment_intent.canceled",
		"payment_intent.processing",
		"payment_intent.requires_action":
		return &Fact{Succeeded: false, Note: "non-success payment event: " + eventType}, nil
	default:
		return &Fact{Succeeded: false, Note: "unhandled event type: " + eventType}, nil
	}

	var raw stripeEnvelope
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("invalid stripe payload: %w", err)
	}

	obj := raw.Data.Object
	if strings.TrimSpace(obj.ID) == "" {
		return nil, errors.New("stripe payload missing payment intent id")
	}

	lines, err := parseOrderItems(obj.Metadata.OrderItems)
	if err != nil {
		return nil, fmt.Errorf("invalid stripe order_items metadata: %w", err)
	}

	return &Fact{
		Succeeded:     true,
		UserID:        parseUserID(obj.Metadata.UserID),
		Email:         strings.TrimSpace(obj.Metadata.Email),
		Lines:         lines,
		TotalAmount:   obj.Amount,
		TransactionID: strings.TrimSpace(obj.ID),
		Currency:      strings.ToUpper(strings.TrimSpace(obj.Currency)),
	}, nil
}

// parseOrderItems decodes the checkout metadata line items. Providers store
// metadata values as strings, so the array arrives JSON-encoded.
func parseOrderItems(encoded string) ([]Line, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, errors.New("order_items is empty")
	}
	var lines []Line
	if err := json.Unmarshal([]byte(encoded), &lines); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, errors.New("order_items contains no lines")
	}
	for i, line := range lines {
		if line.ProductID == 0 {
			return nil, fmt.Errorf("line %d missing product_id", i)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("line %d has non-positive quantity", i)
		}
	}
	return lines, nil
}

func parseUserID(raw string) *uint {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return nil
	}
	uid := uint(id)
	return &uid
}
