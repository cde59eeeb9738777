package webhook

import (
	"encoding/json"
	"strconv"
	"time"
)

// Event is the Creem webhook envelope. The type discriminator is named
// eventType on the wire, not type.
type Event struct {
	ID        string          `json:"id"`
	EventType string          `json:"eventType"`
	CreatedAt int64           `json:"created_at"`
	Object    json.RawMessage `json:"object"`
}

// ParseEvent decodes the raw request body into an envelope.
func ParseEvent(rawBody []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// ObjectPayload is the union of the object fields the handlers read. Creem
// sends different shapes per event type, absent fields simply stay zero.
type ObjectPayload struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	CheckoutID     string `json:"checkout_id"`
	SubscriptionID string `json:"subscription_id"`
	CustomerID     string `json:"customer_id"`
	ProductID      string `json:"product_id"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	BillingCycle   string `json:"billing_cycle"`
	ErrorMessage   string `json:"error_message"`

	CurrentPeriodStart string `json:"current_period_start"`
	CurrentPeriodEnd   string `json:"current_period_end"`
	CancelledAt        string `json:"cancelled_at"`
	ExpiredAt          string `json:"expired_at"`
	PaidAt             string `json:"paid_at"`
	FailedAt           string `json:"failed_at"`

	Metadata Metadata `json:"metadata"`
}

func (e *Event) Payload() (*ObjectPayload, error) {
	var p ObjectPayload
	if len(e.Object) == 0 {
		return &p, nil
	}
	if err := json.Unmarshal(e.Object, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Metadata is what our checkout flow attaches to Creem sessions. Values
// round-trip through the provider as strings or numbers depending on the
// field, hence the mixed types.
type Metadata struct {
	Type             string      `json:"type"`
	UserID           string      `json:"user_id"`
	PlanTier         string      `json:"plan_tier"`
	BillingCycle     string      `json:"billing_cycle"`
	Action           string      `json:"action"`
	AdjustmentMode   string      `json:"adjustment_mode"`
	RemainingSeconds string      `json:"remaining_seconds"`
	WasDowngraded    string      `json:"was_downgraded"`
	PackageCode      string      `json:"package_code"`
	Credits          json.Number `json:"credits"`
}

func (m Metadata) CreditsInt() int64 {
	n, err := m.Credits.Int64()
	if err != nil {
		return 0
	}
	return n
}

func (m Metadata) RemainingSecondsInt() int64 {
	n, err := strconv.ParseInt(m.RemainingSeconds, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseTime accepts the RFC3339 timestamps Creem sends, nil on anything else.
func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
