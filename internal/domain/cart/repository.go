package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists cart aggregates
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Cart, error)

	// FindCurrentByUser returns the user's active (or abandoned) cart.
	// Terminal carts are never returned.
	FindCurrentByUser(ctx context.Context, userID uuid.UUID) (*Cart, error)

	// FindCurrentBySession returns the session's active (or abandoned) cart
	FindCurrentBySession(ctx context.Context, sessionID string) (*Cart, error)

	// Save creates or updates a cart and its items in one transaction
	Save(ctx context.Context, c *Cart) error

	// SaveWithLock updates a cart with an optimistic version check and
	// returns shared.ErrConcurrencyConflict on a stale version
	SaveWithLock(ctx context.Context, c *Cart) error

	// SaveMerge persists a completed merge atomically: the recipient with
	// its folded-in items and the donor in its merged terminal state.
	// Either both commit or neither does.
	SaveMerge(ctx context.Context, recipient, donor *Cart) error

	// MarkAbandonedBefore flags active carts idle since before the cutoff
	// and returns how many were flagged
	MarkAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
