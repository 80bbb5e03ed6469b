package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StripeSignatureTolerance bounds the age of a Stripe-style signature
// timestamp to limit replay of captured deliveries.
const StripeSignatureTolerance = 5 * time.Minute

// VerifyStripeSignature checks a "t=<unix>,v1=<hex>" header against the
// exact raw request bytes. The signed message is "<t>.<raw body>". Multiple
// v1 entries are accepted if any matches (key rotation).
func VerifyStripeSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	return verifyStripeSignatureAt(payload, signatureHeader, webhookSecret, time.Now())
}

func verifyStripeSignatureAt(payload []byte, signatureHeader, webhookSecret string, now time.Time) bool {
	header := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if header == "" || secret == "" {
		return false
	}

	var timestamp string
	var candidates [][]byte
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			if decoded, err := hex.DecodeString(strings.ToLower(value)); err == nil {
				candidates = append(candidates, decoded)
			}
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > StripeSignatureTolerance || age < -StripeSignatureTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.", timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)
	for _, candidate := range candidates {
		if hmac.Equal(expected, candidate) {
			return true
		}
	}
	return false
}

// VerifyRazorpaySignature checks a plain hex HMAC-SHA256 over the exact raw
// request bytes, as carried in X-Razorpay-Signature.
func VerifyRazorpaySignature(payload []byte, signatureHeader, webhookSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}
