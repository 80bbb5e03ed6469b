package fulfillment

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/CartFox/app/models"
	"github.com/ManuelReschke/CartFox/app/repository"
)

// openTestDB connects to the database named by TEST_DATABASE_DSN. Tests in
// this package need a real MySQL because the dedup guards live in its unique
// indexes; without one they are skipped.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("Skipping database-dependent test: TEST_DATABASE_DSN not set")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("Skipping database-dependent test: cannot connect (%v)", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.WebhookEvent{},
	); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}

	cleanup := func() {
		db.Exec("DELETE FROM order_items")
		db.Exec("DELETE FROM orders")
		db.Exec("DELETE FROM webhook_events")
		db.Exec("DELETE FROM products")
	}
	cleanup()
	t.Cleanup(cleanup)

	return db
}

func seedProduct(t *testing.T, db *gorm.DB, name string, price int64, stock int) *models.Product {
	t.Helper()

	product := &models.Product{
		UUID:     uuid.New().String(),
		Name:     name,
		Price:    price,
		Currency: "EUR",
		Stock:    stock,
		IsActive: true,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return product
}

func stripeJob(eventID, intentID string, productID uint, quantity int, unitPrice int64) JobInput {
	items := fmt.Sprintf(`[{\"product_id\":%d,\"quantity\":%d,\"unit_price\":%d}]`, productID, quantity, unitPrice)
	return stripeJobWithItems(eventID, intentID, int64(quantity)*unitPrice, items)
}

// stripeJobWithItems builds a signed-shape delivery carrying an arbitrary
// JSON-escaped order_items string.
func stripeJobWithItems(eventID, intentID string, amount int64, items string) JobInput {
	payload := fmt.Sprintf(`{
		"id": %q,
		"type": "payment_intent.succeeded",
		"data": {
			"object": {
				"id": %q,
				"amount": %d,
				"currency": "eur",
				"metadata": {
					"email": "buyer@example.com",
					"order_items": "%s"
				}
			}
		}
	}`, eventID, intentID, amount, items)

	return JobInput{
		Provider:  models.PaymentProviderStripe,
		EventID:   eventID,
		EventType: "payment_intent.succeeded",
		Payload:   []byte(payload),
		Signature: "t=1,v1=aa",
	}
}

func TestProcessFulfillsOnceAndDeduplicatesRedelivery(t *testing.T) {
	db := openTestDB(t)
	service := NewService(db)
	product := seedProduct(t, db, "Keyboard", 1000, 5)

	job := stripeJob("evt_fulfill_1", "pi_fulfill_1", product.ID, 2, 1000)

	outcome, err := service.Process(context.Background(), job)
	if err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if outcome != OutcomeFulfilled {
		t.Fatalf("expected fulfilled, got %s", outcome)
	}

	// Redelivery of the same event must not create a second order or touch
	// stock again.
	outcome, err = service.Process(context.Background(), job)
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %s", outcome)
	}

	var fresh models.Product
	if err := db.First(&fresh, product.ID).Error; err != nil {
		t.Fatalf("failed to reload product: %v", err)
	}
	if fresh.Stock != 3 {
		t.Errorf("expected stock 3 after one fulfillment, got %d", fresh.Stock)
	}

	var orderCount int64
	db.Model(&models.Order{}).Count(&orderCount)
	if orderCount != 1 {
		t.Errorf("expected exactly one order, got %d", orderCount)
	}

	repos := repository.NewRepositories(db)
	event, err := repos.WebhookEvent.GetByProviderEventID(models.PaymentProviderStripe, "evt_fulfill_1")
	if err != nil {
		t.Fatalf("failed to load ledger row: %v", err)
	}
	if !event.Processed {
		t.Error("expected ledger row to be marked processed")
	}
}

func TestProcessConcurrentDeliveriesCreateOneOrder(t *testing.T) {
	db := openTestDB(t)
	product := seedProduct(t, db, "Headphones", 1500, 5)

	job := stripeJob("evt_race_1", "pi_race_1", product.ID, 2, 1500)

	// Two workers race on the same event. The ledger's unique index decides
	// the winner; the loser must come back clean as a duplicate.
	var wg sync.WaitGroup
	outcomes := make([]Outcome, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = NewService(db).Process(context.Background(), job)
		}(i)
	}
	wg.Wait()

	var fulfilled, duplicate int
	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d returned error: %v", i, errs[i])
		}
		switch outcomes[i] {
		case OutcomeFulfilled:
			fulfilled++
		case OutcomeDuplicate:
			duplicate++
		default:
			t.Fatalf("worker %d: unexpected outcome %s", i, outcomes[i])
		}
	}
	if fulfilled != 1 || duplicate != 1 {
		t.Errorf("expected one fulfilled and one duplicate, got %d/%d", fulfilled, duplicate)
	}

	var orderCount, eventCount int64
	db.Model(&models.Order{}).Count(&orderCount)
	db.Model(&models.WebhookEvent{}).Count(&eventCount)
	if orderCount != 1 {
		t.Errorf("expected exactly one order, got %d", orderCount)
	}
	if eventCount != 1 {
		t.Errorf("expected exactly one ledger row, got %d", eventCount)
	}

	var fresh models.Product
	if err := db.First(&fresh, product.ID).Error; err != nil {
		t.Fatalf("failed to reload product: %v", err)
	}
	if fresh.Stock != 3 {
		t.Errorf("expected stock decremented exactly once to 3, got %d", fresh.Stock)
	}
}

func TestProcessBlocksSameTransactionUnderFreshEventID(t *testing.T) {
	db := openTestDB(t)
	service := NewService(db)
	product := seedProduct(t, db, "Mouse", 500, 10)

	first := stripeJob("evt_txn_a", "pi_shared", product.ID, 1, 500)
	if outcome, err := service.Process(context.Background(), first); err != nil || outcome != OutcomeFulfilled {
		t.Fatalf("first delivery: outcome=%v err=%v", outcome, err)
	}

	// A replay under a new event id passes the ledger but must hit the
	// order-level transaction guard.
	replay := stripeJob("evt_txn_b", "pi_shared", product.ID, 1, 500)
	outcome, err := service.Process(context.Background(), replay)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %s", outcome)
	}

	var orderCount int64
	db.Model(&models.Order{}).Count(&orderCount)
	if orderCount != 1 {
		t.Errorf("expected exactly one order, got %d", orderCount)
	}
}

func TestProcessRecordsNonSuccessEventsWithoutFulfilling(t *testing.T) {
	db := openTestDB(t)
	service := NewService(db)

	job := JobInput{
		Provider:  models.PaymentProviderStripe,
		EventID:   "evt_failed_1",
		EventType: "payment_intent.payment_failed",
		Payload:   []byte(`{"id":"evt_failed_1","type":"payment_intent.payment_failed"}`),
	}

	outcome, err := service.Process(context.Background(), job)
	if err != nil {
		t.Fatalf("processing failed: %v", err)
	}
	if outcome != OutcomeIgnored {
		t.Fatalf("expected ignored, got %s", outcome)
	}

	repos := repository.NewRepositories(db)
	event, err := repos.WebhookEvent.GetByProviderEventID(models.PaymentProviderStripe, "evt_failed_1")
	if err != nil {
		t.Fatalf("expected a ledger row even for ignored events: %v", err)
	}
	if !event.Processed {
		t.Error("expected ignored event marked processed")
	}
	if event.Note == "" {
		t.Error("expected the skip reason recorded in the note")
	}
	if event.ProcessingError != "" {
		t.Errorf("processing_error must stay a failure signal, got %q", event.ProcessingError)
	}

	var orderCount int64
	db.Model(&models.Order{}).Count(&orderCount)
	if orderCount != 0 {
		t.Errorf("expected no orders, got %d", orderCount)
	}
}

func TestProcessRollsBackEverythingOnInsufficientStock(t *testing.T) {
	db := openTestDB(t)
	service := NewService(db)

	// Two lines: the first is in stock and gets decremented before the
	// second hits the shortfall.
	inStock := seedProduct(t, db, "Sticker Pack", 500, 10)
	limited := seedProduct(t, db, "Limited Print", 2000, 1)

	items := fmt.Sprintf(
		`[{\"product_id\":%d,\"quantity\":1,\"unit_price\":500},{\"product_id\":%d,\"quantity\":3,\"unit_price\":2000}]`,
		inStock.ID, limited.ID)
	job := stripeJobWithItems("evt_short_1", "pi_short_1", 6500, items)

	outcome, err := service.Process(context.Background(), job)
	if err == nil {
		t.Fatal("expected an error when stock is insufficient")
	}
	if outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %s", outcome)
	}

	// The whole transaction rolls back: no order, no ledger row, and the
	// already-decremented first line is restored, so a later restock plus
	// retry can still succeed.
	var orderCount, eventCount int64
	db.Model(&models.Order{}).Count(&orderCount)
	db.Model(&models.WebhookEvent{}).Count(&eventCount)
	if orderCount != 0 {
		t.Errorf("expected no orders after rollback, got %d", orderCount)
	}
	if eventCount != 0 {
		t.Errorf("expected no ledger rows after rollback, got %d", eventCount)
	}

	var freshInStock, freshLimited models.Product
	if err := db.First(&freshInStock, inStock.ID).Error; err != nil {
		t.Fatalf("failed to reload product: %v", err)
	}
	if freshInStock.Stock != 10 {
		t.Errorf("expected in-stock line restored to 10, got %d", freshInStock.Stock)
	}
	if err := db.First(&freshLimited, limited.ID).Error; err != nil {
		t.Fatalf("failed to reload product: %v", err)
	}
	if freshLimited.Stock != 1 {
		t.Errorf("expected short line unchanged at 1, got %d", freshLimited.Stock)
	}
}

func TestProcessFailsOnUnknownProduct(t *testing.T) {
	db := openTestDB(t)
	service := NewService(db)

	job := stripeJob("evt_ghost_1", "pi_ghost_1", 999999, 1, 100)

	outcome, err := service.Process(context.Background(), job)
	if err == nil {
		t.Fatal("expected an error for an unknown product")
	}
	if outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %s", outcome)
	}
}
