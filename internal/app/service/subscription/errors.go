package subscription

import "errors"

// ErrNoActiveSubscription is returned by tier-change preparation when the
// user has no active subscription to move away from.
var ErrNoActiveSubscription = errors.New("no active subscription found")
