package types

// EventKind is the closed set of Creem webhook event types this service
// reacts to. Anything else maps to EventKindUnknown and is acknowledged as a
// no-op so the provider never sees an error for events we do not care about.
type EventKind string

const (
	EventKindCheckoutCompleted     EventKind = "checkout.completed"
	EventKindSubscriptionCreated   EventKind = "subscription.created"
	EventKindSubscriptionUpdated   EventKind = "subscription.updated"
	EventKindSubscriptionCancelled EventKind = "subscription.cancelled"
	EventKindSubscriptionActive    EventKind = "subscription.active"
	EventKindSubscriptionPaid      EventKind = "subscription.paid"
	EventKindSubscriptionExpired   EventKind = "subscription.expired"
	EventKindPaymentSucceeded      EventKind = "payment.succeeded"
	EventKindPaymentFailed         EventKind = "payment.failed"
	EventKindUnknown               EventKind = ""
)

var knownEventKinds = map[EventKind]struct{}{
	EventKindCheckoutCompleted:     {},
	EventKindSubscriptionCreated:   {},
	EventKindSubscriptionUpdated:   {},
	EventKindSubscriptionCancelled: {},
	EventKindSubscriptionActive:    {},
	EventKindSubscriptionPaid:      {},
	EventKindSubscriptionExpired:   {},
	EventKindPaymentSucceeded:      {},
	EventKindPaymentFailed:         {},
}

func ParseEventKind(s string) EventKind {
	if _, ok := knownEventKinds[EventKind(s)]; ok {
		return EventKind(s)
	}
	return EventKindUnknown
}

// PurchaseType distinguishes the two checkout flavors carried in
// checkout metadata.
type PurchaseType string

const (
	PurchaseTypeCreditPackage PurchaseType = "credit_package"
	PurchaseTypeSubscription  PurchaseType = "subscription"
)
