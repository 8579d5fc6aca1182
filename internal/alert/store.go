package alert

import "context"

// Store is the persistence interface for alerts. Implementations return
// copies; callers never share memory with the store.
type Store interface {
	// Append stores a new alert. It fails with ErrDuplicateID when the id is
	// already present and never stores a partial record.
	Append(ctx context.Context, a *Alert) error

	// List returns every alert in insertion order.
	List(ctx context.Context) ([]Alert, error)

	// Get retrieves an alert by id.
	Get(ctx context.Context, id string) (*Alert, bool, error)

	// MarkResolved sets resolved=true and returns the updated alert.
	// Resolving an already resolved alert succeeds without change.
	MarkResolved(ctx context.Context, id string) (*Alert, bool, error)
}
