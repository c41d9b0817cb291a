package store

import (
	"context"
	"time"
)

// UsageStore tracks books taken against a customer's monthly allowance.
type UsageStore interface {
	// Record stores one book usage for the customer at the given instant.
	Record(ctx context.Context, customerID, bookID int64, at time.Time) error

	// CountSince returns the number of usages recorded for the customer at or after since.
	CountSince(ctx context.Context, customerID int64, since time.Time) (int, error)
}
