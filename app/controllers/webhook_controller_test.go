package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CartFox/internal/pkg/env"
)

const (
	testStripeSecret   = "whsec_controller_test"
	testRazorpaySecret = "rzp_controller_test"
)

func newWebhookTestApp() *fiber.App {
	if env.Env == nil {
		env.Env = map[string]string{}
	}
	env.Env["STRIPE_WEBHOOK_SECRET"] = testStripeSecret
	env.Env["RAZORPAY_WEBHOOK_SECRET"] = testRazorpaySecret

	app := fiber.New()
	app.Post("/webhooks/stripe", HandleStripeWebhook)
	app.Post("/webhooks/razorpay", HandleRazorpayWebhook)
	return app
}

func signStripe(body, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func signRazorpay(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestStripeWebhookRejectsMissingSignature(t *testing.T) {
	app := newWebhookTestApp()

	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(`{"id":"evt_1","type":"x"}`))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStripeWebhookRejectsForgedSignature(t *testing.T) {
	app := newWebhookTestApp()
	body := `{"id":"evt_1","type":"payment_intent.succeeded"}`

	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", signStripe(body, "whsec_wrong"))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStripeWebhookRejectsValidSignatureOverBrokenPayload(t *testing.T) {
	app := newWebhookTestApp()
	body := `{"type":"payment_intent.succeeded"}` // missing event id

	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", signStripe(body, testStripeSecret))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRazorpayWebhookRejectsForgedSignature(t *testing.T) {
	app := newWebhookTestApp()
	body := `{"event":"payment.captured"}`

	req := httptest.NewRequest("POST", "/webhooks/razorpay", strings.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", signRazorpay(body, "wrong"))
	req.Header.Set("X-Razorpay-Event-Id", "evt_1")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRazorpayWebhookRejectsMissingEventID(t *testing.T) {
	app := newWebhookTestApp()
	body := `{"event":"payment.captured"}`

	req := httptest.NewRequest("POST", "/webhooks/razorpay", strings.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", signRazorpay(body, testRazorpaySecret))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}
