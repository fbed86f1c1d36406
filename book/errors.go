package book

import "errors"

// User-facing errors. Internal invariant violations (a broken id index, a
// crossed book after matching) are programming-contract failures and panic
// instead; they must never be reported as ordinary request errors.
var (
	ErrInvalidRequest    = errors.New("invalid order request")
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateOrder    = errors.New("duplicate order id")
	ErrUnknownInstrument = errors.New("unknown instrument")
)
