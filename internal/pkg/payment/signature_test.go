package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

func stripeSignHeader(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyStripeSignatureValid(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	secret := "whsec_test"
	now := time.Now()

	header := stripeSignHeader(payload, secret, now)
	if !verifyStripeSignatureAt(payload, header, secret, now) {
		t.Fatal("expected valid signature to verify")
	}
}

func TestVerifyStripeSignatureTamperedBody(t *testing.T) {
	payload := []byte(`{"id":"evt_1","amount":1000}`)
	secret := "whsec_test"
	now := time.Now()

	header := stripeSignHeader(payload, secret, now)
	tampered := []byte(`{"id":"evt_1","amount":9000}`)
	if verifyStripeSignatureAt(tampered, header, secret, now) {
		t.Fatal("expected tampered body to fail verification")
	}
}

func TestVerifyStripeSignatureWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	header := stripeSignHeader(payload, "whsec_a", now)
	if verifyStripeSignatureAt(payload, header, "whsec_b", now) {
		t.Fatal("expected wrong secret to fail verification")
	}
}

func TestVerifyStripeSignatureExpiredTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	signedAt := time.Now().Add(-StripeSignatureTolerance - time.Minute)

	header := stripeSignHeader(payload, secret, signedAt)
	if verifyStripeSignatureAt(payload, header, secret, time.Now()) {
		t.Fatal("expected stale timestamp to fail verification")
	}
}

func TestVerifyStripeSignatureAcceptsRotatedKey(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_new"
	now := time.Now()

	oldHeader := stripeSignHeader(payload, "whsec_old", now)
	newHeader := stripeSignHeader(payload, secret, now)
	// Two v1 entries as sent during key rotation; one matching is enough.
	combined := oldHeader + "," + newHeader[len(fmt.Sprintf("t=%d,", now.Unix())):]
	if !verifyStripeSignatureAt(payload, combined, secret, now) {
		t.Fatal("expected any matching v1 entry to verify")
	}
}

func TestVerifyStripeSignatureMalformedHeaders(t *testing.T) {
	payload := []byte(`{}`)
	cases := []string{
		"",
		"v1=abcdef",
		"t=12345",
		"t=notanumber,v1=abcdef",
		"t=12345,v1=zzzz",
	}
	for _, header := range cases {
		if verifyStripeSignatureAt(payload, header, "whsec_test", time.Now()) {
			t.Fatalf("expected header %q to fail verification", header)
		}
	}
}

func TestVerifyRazorpaySignature(t *testing.T) {
	payload := []byte(`{"event":"payment.captured"}`)
	secret := "rzp_secret"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	sig := hex.EncodeToString(mac.Sum(nil))

	if !VerifyRazorpaySignature(payload, sig, secret) {
		t.Fatal("expected valid signature to verify")
	}
	if VerifyRazorpaySignature([]byte(`{"event":"payment.failed"}`), sig, secret) {
		t.Fatal("expected different body to fail verification")
	}
	if VerifyRazorpaySignature(payload, sig, "wrong") {
		t.Fatal("expected wrong secret to fail verification")
	}
	if VerifyRazorpaySignature(payload, "", secret) {
		t.Fatal("expected empty signature to fail verification")
	}
	if VerifyRazorpaySignature(payload, "not-hex", secret) {
		t.Fatal("expected non-hex signature to fail verification")
	}
}
