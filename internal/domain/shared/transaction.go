package shared

import "context"

// Transactor runs fn atomically. Repositories called with the ctx handed to fn take part
// in the same transaction.
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
