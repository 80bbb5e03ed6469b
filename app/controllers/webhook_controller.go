package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CartFox/app/models"
	"github.com/ManuelReschke/CartFox/app/repository"
	"github.com/ManuelReschke/CartFox/internal/pkg/database"
	"github.com/ManuelReschke/CartFox/internal/pkg/env"
	"github.com/ManuelReschke/CartFox/internal/pkg/jobqueue"
	metrics "github.com/ManuelReschke/CartFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/CartFox/internal/pkg/payment"
)

// HandleStripeWebhook terminates Stripe-style deliveries: verify the
// signature over the exact raw bytes, dedupe against the ledger as a fast
// path, enqueue, and acknowledge. All state mutation is deferred to the
// fulfillment worker; the provider gets its 200 as soon as the job is
// durably enqueued.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	if !payment.VerifyStripeSignature(rawBody, signature, secret) {
		_ = metrics.AddWebhookRejected(models.PaymentProviderStripe)
		log.Warnf("[Webhook] Rejected stripe delivery: signature verification failed")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	eventID, eventType, err := payment.ExtractStripeEventInfo(rawBody)
	if err != nil {
		log.Warnf("[Webhook] Rejected stripe delivery: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	return acceptWebhook(c, models.PaymentProviderStripe, eventID, eventType, rawBody, signature)
}

// HandleRazorpayWebhook terminates Razorpay-style deliveries. The event id
// travels in a header rather than the payload; everything else matches the
// Stripe path.
func HandleRazorpayWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Razorpay-Signature"))
	secret := env.GetEnv("RAZORPAY_WEBHOOK_SECRET", "")

	if !payment.VerifyRazorpaySignature(rawBody, signature, secret) {
		_ = metrics.AddWebhookRejected(models.PaymentProviderRazorpay)
		log.Warnf("[Webhook] Rejected razorpay delivery: signature verification failed")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	eventID := strings.TrimSpace(c.Get("X-Razorpay-Event-Id"))
	if eventID == "" {
		log.Warnf("[Webhook] Rejected razorpay delivery: missing X-Razorpay-Event-Id")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_event_id"})
	}
	eventType, err := payment.ExtractRazorpayEventType(rawBody)
	if err != nil {
		log.Warnf("[Webhook] Rejected razorpay delivery: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	return acceptWebhook(c, models.PaymentProviderRazorpay, eventID, eventType, rawBody, signature)
}

func acceptWebhook(c *fiber.Ctx, provider, eventID, eventType string, rawBody []byte, signature string) error {
	_ = metrics.AddWebhookReceived(provider)

	// Best-effort fast path: skip the enqueue when the ledger already has
	// the event. The authoritative dedup happens worker-side inside the
	// transaction; a race here only costs one no-op job.
	events := repository.NewWebhookEventRepository(database.GetDB())
	exists, err := events.Exists(provider, eventID)
	if err != nil {
		log.Errorf("[Webhook] Ledger lookup failed for %s event %s: %v", provider, eventID, err)
	} else if exists {
		_ = metrics.AddWebhookDuplicate(provider)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	_, enqueued, err := jobqueue.GetManager().GetQueue().EnqueueWebhookJob(jobqueue.FulfillWebhookJobPayload{
		Provider:   provider,
		EventID:    eventID,
		EventType:  eventType,
		RawPayload: string(rawBody),
		Signature:  signature,
	})
	if err != nil {
		// A 5xx makes the provider retry later; the eventual retry dedupes.
		log.Errorf("[Webhook] Enqueue failed for %s event %s: %v", provider, eventID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "enqueue_failed"})
	}
	if !enqueued {
		_ = metrics.AddWebhookDuplicate(provider)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "queued": true})
}
