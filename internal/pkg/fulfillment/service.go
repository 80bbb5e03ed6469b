package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CartFox/app/models"
	"github.com/ManuelReschke/CartFox/app/repository"
	"github.com/ManuelReschke/CartFox/internal/pkg/payment"
)

var (
	// ErrAlreadyProcessed signals that another delivery of the same event won
	// the ledger insert. The transaction is rolled back and the job is
	// acknowledged as done.
	ErrAlreadyProcessed = errors.New("webhook event already processed")

	// ErrDuplicateTransaction signals that an order for the provider
	// transaction already exists (e.g. a manual replay under a fresh event
	// id). Same treatment as ErrAlreadyProcessed.
	ErrDuplicateTransaction = errors.New("order already exists for payment transaction")
)

// Outcome classifies what a processed job did, for logging and counters.
type Outcome string

const (
	OutcomeFulfilled Outcome = "fulfilled"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFailed    Outcome = "failed"
)

// JobInput is the queue-delivered webhook event, untouched since receipt.
// Payload must be the exact bytes the provider sent.
type JobInput struct {
	Provider  string
	EventID   string
	EventType string
	Payload   []byte
	Signature string
}

// Service converts a possibly-duplicate provider event into at most one
// order plus stock decrement, atomically per job.
type Service struct {
	db *gorm.DB
}

// NewService creates a fulfillment service on a GORM DB handle.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Process runs the full fulfillment state machine for one job inside a
// single database transaction:
//
//	record event (unique insert is the authoritative dedup) ->
//	normalize payload -> order dedup by transaction id ->
//	create order -> decrement stock per line -> commit
//
// Duplicates at either guard roll back and report done. A stock shortfall
// rolls back everything, including the order, and surfaces as a job error
// so the queue's retry and dead-letter policy applies: money has already
// moved at the provider, so this must stay loudly visible.
func (s *Service) Process(ctx context.Context, in JobInput) (Outcome, error) {
	fact, err := payment.Normalize(in.Provider, in.EventType, in.Payload)
	if err != nil {
		// A malformed success payload never improves on retry, but marking
		// it processed would silently swallow a paid order. Let the queue
		// retry and dead-letter it for manual handling.
		return OutcomeFailed, fmt.Errorf("normalize %s event %s: %w", in.Provider, in.EventID, err)
	}

	outcome := OutcomeFulfilled
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := repository.NewRepositories(tx)

		event := &models.WebhookEvent{
			Provider:        in.Provider,
			ProviderEventID: in.EventID,
			EventType:       in.EventType,
			PayloadJSON:     string(in.Payload),
			Signature:       in.Signature,
		}
		created, _, err := repos.WebhookEvent.CreateIfNotExists(event)
		if err != nil {
			return err
		}
		if !created {
			// Lost the insert race or redelivery of a committed event.
			return ErrAlreadyProcessed
		}

		if !fact.Succeeded {
			// Not a fulfillment trigger. The committed ledger row is the
			// durable proof the event was seen.
			outcome = OutcomeIgnored
			return repos.WebhookEvent.MarkProcessed(event.ID, fact.Note)
		}

		if _, err := repos.Order.GetByPaymentTransaction(in.Provider, fact.TransactionID); err == nil {
			return ErrDuplicateTransaction
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		order := &models.Order{
			UserID:               fact.UserID,
			Email:                fact.Email,
			TotalAmount:          fact.TotalAmount,
			Currency:             fact.Currency,
			Status:               models.OrderStatusProcessing,
			PaymentMethod:        in.Provider,
			PaymentTransactionID: fact.TransactionID,
		}
		for _, line := range fact.Lines {
			product, err := repos.Product.GetByID(line.ProductID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("event %s references unknown product %d", in.EventID, line.ProductID)
				}
				return err
			}
			order.Items = append(order.Items, models.OrderItem{
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
			})
		}
		if err := order.Validate(); err != nil {
			return fmt.Errorf("event %s produced invalid order: %w", in.EventID, err)
		}
		if err := repos.Order.Create(order); err != nil {
			return err
		}

		for _, line := range fact.Lines {
			if err := repos.Product.DecrementStock(line.ProductID, line.Quantity); err != nil {
				return fmt.Errorf("product %d: %w", line.ProductID, err)
			}
		}

		if err := repos.WebhookEvent.MarkProcessed(event.ID, ""); err != nil {
			return err
		}

		log.Infof("[Fulfillment] Created order %s (total=%d %s) for %s event %s",
			order.UUID, order.TotalAmount, order.Currency, in.Provider, in.EventID)
		return nil
	})

	if txErr != nil {
		if errors.Is(txErr, ErrAlreadyProcessed) || errors.Is(txErr, ErrDuplicateTransaction) {
			log.Infof("[Fulfillment] Skipping %s event %s: %v", in.Provider, in.EventID, txErr)
			return OutcomeDuplicate, nil
		}
		return OutcomeFailed, txErr
	}
	return outcome, nil
}
