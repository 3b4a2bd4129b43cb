package stripe

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

	"github.com/nivo-app/nivo-hub/internal/domain/billing"
)

// DefaultSignatureTolerance bounds how old a signed webhook may be.
// Replayed payloads outside this window are rejected even with a valid
// signature.
const DefaultSignatureTolerance = 5 * time.Minute

var (
	// ErrInvalidSignature is returned when signature verification fails.
	ErrInvalidSignature = errors.New("stripe: invalid webhook signature")

	// ErrSignatureExpired is returned when the signed timestamp is outside
	// the tolerance window.
	ErrSignatureExpired = errors.New("stripe: webhook signature expired")

	// ErrMalformedSignature is returned when the signature header cannot
	// be parsed.
	ErrMalformedSignature = errors.New("stripe: malformed signature header")
)

// VerifySignature checks the webhook signature header against the payload.
// The header format is "t=<unix>,v1=<hex hmac>"; the signed message is
// "<unix>.<payload>" keyed with the webhook secret.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" || secret == "" {
		return ErrMalformedSignature
	}
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}

	var timestamp int64
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrMalformedSignature
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return ErrMalformedSignature
	}

	signedAt := time.Unix(timestamp, 0)
	diff := now.Sub(signedAt)
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		return ErrSignatureExpired
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}

	return ErrInvalidSignature
}

// webhookEnvelope mirrors the provider's outer event structure.
type webhookEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// webhookObject covers the fields shared by checkout sessions, subscriptions
// and invoices. Unknown fields are ignored.
type webhookObject struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	Subscription     string `json:"subscription"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	ClientReference  string `json:"client_reference_id"`
}

// ParseWebhookEvent decodes a raw webhook payload into a domain event.
// Signature verification must happen before calling this.
func ParseWebhookEvent(payload []byte) (billing.WebhookEvent, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return billing.WebhookEvent{}, fmt.Errorf("stripe: malformed webhook payload: %w", err)
	}
	if envelope.ID == "" || envelope.Type == "" {
		return billing.WebhookEvent{}, errors.New("stripe: webhook payload missing id or type")
	}

	var object webhookObject
	if len(envelope.Data.Object) > 0 {
		if err := json.Unmarshal(envelope.Data.Object, &object); err != nil {
			return billing.WebhookEvent{}, fmt.Errorf("stripe: malformed webhook object: %w", err)
		}
	}

	event := billing.WebhookEvent{
		ID:              envelope.ID,
		Kind:            billing.EventKind(envelope.Type),
		CustomerID:      object.Customer,
		Status:          object.Status,
		ClientReference: object.ClientReference,
		ReceivedAt:      time.Now().UTC(),
	}

	// Subscription events carry the subscription ID as the object ID;
	// checkout and invoice events reference it by a separate field.
	switch billing.EventKind(envelope.Type) {
	case billing.EventSubscriptionUpdated, billing.EventSubscriptionDeleted:
		event.SubscriptionID = object.ID
	default:
		event.SubscriptionID = object.Subscription
	}

	if object.CurrentPeriodEnd > 0 {
		periodEnd := time.Unix(object.CurrentPeriodEnd, 0).UTC()
		event.CurrentPeriodEnd = &periodEnd
	}

	return event, nil
}
