package ledger

import "errors"

var (
	// ErrInsufficientCredits is returned by Deduct when the user's eligible
	// balance cannot cover the requested amount. Nothing is written.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidAmount is returned when a grant or deduction amount is not
	// strictly positive.
	ErrInvalidAmount = errors.New("amount must be positive")
)
