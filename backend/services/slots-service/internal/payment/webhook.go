package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Webhook event types handled by the service.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
)

// DefaultSignatureTolerance bounds the age of a signed webhook.
const DefaultSignatureTolerance = 5 * time.Minute

var (
	// ErrInvalidSignature is returned for missing, malformed or mismatching signatures.
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	// ErrInvalidPayload is returned for undecodable webhook bodies.
	ErrInvalidPayload = errors.New("payment: invalid webhook payload")
)

// WebhookEvent is the subset of a Stripe event the service reads.
type WebhookEvent struct {
	ID            string
	Type          string
	SessionID     string
	PaymentStatus string
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			PaymentStatus string `json:"payment_status"`
		} `json:"object"`
	} `json:"data"`
}

// VerifySignature checks a Stripe-Signature header against payload.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	header = strings.TrimSpace(header)
	if header == "" || secret == "" {
		return ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return ErrInvalidSignature
	}

	if tolerance > 0 {
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return ErrInvalidSignature
		}
		if age := now.Sub(time.Unix(ts, 0)); age > tolerance || age < -tolerance {
			return ErrInvalidSignature
		}
	}

	expected := Sign(payload, timestamp, secret)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign computes the v1 signature for payload at timestamp.
func Sign(payload []byte, timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%s.%s", timestamp, payload)))
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseEvent decodes a checkout webhook body.
func ParseEvent(payload []byte) (*WebhookEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ErrInvalidPayload
	}
	if event.Type == "" {
		return nil, ErrInvalidPayload
	}
	return &WebhookEvent{
		ID:            event.ID,
		Type:          event.Type,
		SessionID:     event.Data.Object.ID,
		PaymentStatus: event.Data.Object.PaymentStatus,
	}, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	var timestamp string
	signatures := []string{}
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			timestamp = strings.TrimSpace(value)
		case "v1":
			signatures = append(signatures, strings.TrimSpace(value))
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid signature header")
	}
	return timestamp, signatures, nil
}
