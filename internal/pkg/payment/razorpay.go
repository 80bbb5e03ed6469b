package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type razorpayEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID       string `json:"id"`
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
				Email    string `json:"email"`
				Notes    struct {
					UserID     string `json:"user_id"`
					OrderItems string `json:"order_items"`
				} `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ExtractRazorpayEventType reads the event name from the raw body. The
// event id travels in the X-Razorpay-Event-Id header, not the payload.
func ExtractRazorpayEventType(payload []byte) (string, error) {
	var raw razorpayEnvelope
	if err := json.Unmarshal(payload, &raw); err != nil {
		return "", err
	}
	eventType := strings.TrimSpace(raw.Event)
	if eventType == "" {
		return "", errors.New("razorpay event payload missing event name")
	}
	return eventType, nil
}

// NormalizeRazorpayEvent maps a Razorpay-style event onto the
// provider-agnostic Fact. Only payment.captured produces a success fact.
// payment.authorized is deliberately ignored: the captured event for the
// same payment follows and is the durable money-moved signal.
func NormalizeRazorpayEvent(eventType string, payload []byte) (*Fact, error) {
	switch eventType {
	case "payment.captured":
		// fallthrough to full parse below
	case "payment.failed", "payment.authorized", "order.paid", "refund.processed":
		return &Fact{Succeeded: false, Note: "non-fulfillment payment event: " + eventType}, nil
	default:
		return &Fact{Succeeded: false, Note: "unhandled event type: " + eventType}, nil
	}

	var raw razorpayEnvelope
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("invalid razorpay payload: %w", err)
	}

	entity := raw.Payload.Payment.Entity
	if strings.TrimSpace(entity.ID) == "" {
		return nil, errors.New("razorpay payload missing payment id")
	}

	lines, err := parseOrderItems(entity.Notes.OrderItems)
	if err != nil {
		return nil, fmt.Errorf("invalid razorpay order_items notes: %w", err)
	}

	return &Fact{
		Succeeded:     true,
		UserID:        parseUserID(entity.Notes.UserID),
		Email:         strings.TrimSpace(entity.Email),
		Lines:         lines,
		TotalAmount:   entity.Amount,
		TransactionID: strings.TrimSpace(entity.ID),
		Currency:      strings.ToUpper(strings.TrimSpace(entity.Currency)),
	}, nil
}
