package engine

import (
	"context"
	"time"

	"github.com/resotel/tariff-conventions/internal/model"
)

// Store is the persistence contract for conventions.  Implementations
// perform no business validation; they are a durable table boundary.
// Every successful Insert/Update advances the record's UpdatedAt.
type Store interface {
	// GetByID returns the convention with the given id, or an error
	// satisfying errors.Is(err, repository.ErrConventionNotFound) when
	// no such row exists.
	GetByID(ctx context.Context, id uint64) (*model.Convention, error)

	// FindActiveByScope returns all active conventions for the
	// (clientID, categoryID) scope key.  When excludeID is non-zero the
	// matching record is omitted, so an update does not conflict with
	// itself.
	FindActiveByScope(ctx context.Context, clientID, categoryID, excludeID uint64) ([]model.Convention, error)

	// FindCovering returns the active conventions for the scope key
	// whose validity window contains the given date (open-ended windows
	// extend to unbounded future).
	FindCovering(ctx context.Context, clientID, categoryID uint64, on time.Time) ([]model.Convention, error)

	// Insert stores a new convention and returns the assigned id.
	Insert(ctx context.Context, c *model.Convention) (uint64, error)

	// Update replaces the mutable fields of an existing convention.
	// The monthly price columns are always written in full, so months
	// absent from c.MonthlyPrices are cleared on the stored record.
	Update(ctx context.Context, c *model.Convention) error
}

// TxStore extends Store with the atomic check-then-act scope required by
// the orchestrator.  WithScopeLock runs fn while holding an exclusive
// lock on the (clientID, categoryID) scope key; the work performed
// through the Store handed to fn commits as one unit when fn returns nil
// and is discarded otherwise.  The lock must exclude every other writer
// of the same scope key across all service instances, which is why the
// production implementation leans on the database rather than a process
// mutex.
type TxStore interface {
	Store
	WithScopeLock(ctx context.Context, clientID, categoryID uint64, fn func(Store) error) error
}
