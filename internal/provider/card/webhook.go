package card

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/models"
)

// SignatureHeader carries the webhook signature: "t=<unix>,v1=<hex hmac>".
const SignatureHeader = "Shop-Signature"

// DefaultTolerance bounds how old a signed timestamp may be.
const DefaultTolerance = 5 * time.Minute

// Event types emitted by the card processor. Only the completed-session
// event is authoritative for the shipping amount; the lower-tier payment
// event confirms the charge but must not touch shipping lines.
const (
	EventSessionCompleted = "checkout.session.completed"
	EventPaymentSucceeded = "payment_intent.succeeded"
)

var (
	ErrBadSignature    = fmt.Errorf("invalid webhook signature")
	ErrUnsupportedType = fmt.Errorf("unsupported event type")
)

// VerifySignature checks the HMAC-SHA256 signature over "<t>.<payload>" and
// rejects timestamps outside the tolerance window.
func VerifySignature(payload []byte, header, secret string, now time.Time, tolerance time.Duration) error {
	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			ts, _ = strconv.ParseInt(v, 10, 64)
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return ErrBadSignature
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > tolerance || age < -tolerance {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}

// Sign produces a signature header for a payload. Used by tests and the
// sandbox tooling.
func Sign(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID           string `json:"id"`
			AmountTotal  int64  `json:"amount_total"`
			ShippingCost *struct {
				AmountTotal int64 `json:"amount_total"`
			} `json:"shipping_cost,omitempty"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParseEvent normalizes a verified webhook payload into the envelope the
// reconciliation engine consumes. Event types outside the two known classes
// return ErrUnsupportedType so the receiver can acknowledge and drop them.
func ParseEvent(payload []byte) (*models.NotificationEnvelope, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook event: %w", err)
	}

	env := &models.NotificationEnvelope{
		OrderID:       event.Data.Object.Metadata["order_id"],
		ExternalID:    event.ID,
		Provider:      models.ProviderCard,
		ReportedTotal: event.Data.Object.AmountTotal,
	}

	switch event.Type {
	case EventSessionCompleted:
		env.AuthoritativeForShipping = true
		if event.Data.Object.ShippingCost != nil {
			amount := event.Data.Object.ShippingCost.AmountTotal
			env.ReportedShipping = &amount
		}
	case EventPaymentSucceeded:
		// Lower authority tier: confirms the charge, carries no shipping
		// authority even when the payload reports an amount.
	default:
		return nil, ErrUnsupportedType
	}

	return env, nil
}
