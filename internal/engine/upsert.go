package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/resotel/tariff-conventions/internal/model"
)

// UpsertInput carries every convention field plus an optional ID.  An ID
// of zero means create; a non-zero ID means replace the mutable fields
// of the existing record.  MonthlyPrices is a full replacement on every
// call: months absent from the map are cleared on the stored record,
// never merged with what was there before.
type UpsertInput struct {
	ID              uint64
	ClientID        uint64
	CategoryID      uint64
	HotelID         *uint64
	ValidityStart   time.Time
	ValidityEnd     *time.Time
	DefaultPrice    decimal.Decimal
	MonthlyPrices   model.MonthlyPrices
	DiscountPercent *decimal.Decimal
	FlatMonthlyRate *decimal.Decimal
	Notes           *string
	Active          bool
}

// UpsertResult reports the id of the written record and whether it was
// newly created.
type UpsertResult struct {
	ID      uint64
	Created bool
}

// Orchestrator is the only write path into the convention store.  It
// validates input, detects window conflicts and commits the write as one
// atomic unit under the store's per-scope-key lock, closing the
// check-then-act race between concurrent edits of the same scope.
type Orchestrator struct {
	store TxStore
}

// NewOrchestrator returns an Orchestrator backed by the given store.
func NewOrchestrator(store TxStore) *Orchestrator {
	if store == nil {
		panic("nil store passed to NewOrchestrator")
	}
	return &Orchestrator{store: store}
}

// Upsert creates or replaces a convention.  Validation failures return a
// *ValidationError before any store access.  A window conflict with
// another active convention of the same scope returns ErrOverlapConflict
// when the input itself is active; inactive records never conflict.
// Storage errors are surfaced unmodified.
func (o *Orchestrator) Upsert(ctx context.Context, in UpsertInput) (UpsertResult, error) {
	if err := validate(in); err != nil {
		return UpsertResult{}, err
	}

	var res UpsertResult
	err := o.store.WithScopeLock(ctx, in.ClientID, in.CategoryID, func(s Store) error {
		overlap, err := HasOverlap(ctx, s, in.ClientID, in.CategoryID, in.ValidityStart, in.ValidityEnd, in.ID)
		if err != nil {
			return err
		}
		if overlap && in.Active {
			return ErrOverlapConflict
		}
		rec := in.toModel()
		if in.ID == 0 {
			id, err := s.Insert(ctx, rec)
			if err != nil {
				return err
			}
			res = UpsertResult{ID: id, Created: true}
			return nil
		}
		// Updating: the target row must exist.  GetByID's not-found
		// error propagates unchanged for the handler to map.
		if _, err := s.GetByID(ctx, in.ID); err != nil {
			return err
		}
		rec.ID = in.ID
		if err := s.Update(ctx, rec); err != nil {
			return err
		}
		res = UpsertResult{ID: in.ID}
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return res, nil
}

// SetActive flips a convention's active flag.  Reactivation runs the
// same overlap check as Upsert so a dormant window cannot resurrect into
// a conflict; deactivation is unconditional.
func (o *Orchestrator) SetActive(ctx context.Context, id uint64, active bool) error {
	// Read outside the lock only to learn the scope key.
	rec, err := o.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return o.store.WithScopeLock(ctx, rec.ClientID, rec.CategoryID, func(s Store) error {
		cur, err := s.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if cur.Active == active {
			return nil
		}
		if active {
			overlap, err := HasOverlap(ctx, s, cur.ClientID, cur.CategoryID, cur.ValidityStart, cur.ValidityEnd, id)
			if err != nil {
				return err
			}
			if overlap {
				return ErrOverlapConflict
			}
		}
		cur.Active = active
		return s.Update(ctx, cur)
	})
}

// validate applies the fail-fast input rules.  It never touches the
// store.
func validate(in UpsertInput) error {
	if in.ClientID == 0 {
		return invalid("client_id", "required")
	}
	if in.CategoryID == 0 {
		return invalid("category_id", "required")
	}
	if in.ValidityStart.IsZero() {
		return invalid("validity_start", "required")
	}
	if in.ValidityEnd != nil && in.ValidityEnd.Before(in.ValidityStart) {
		return invalid("validity_end", "must not precede validity_start")
	}
	if in.FlatMonthlyRate == nil {
		if !in.DefaultPrice.IsPositive() {
			return invalid("default_price", "must be greater than zero")
		}
	} else {
		if !in.FlatMonthlyRate.IsPositive() {
			return invalid("flat_monthly_rate", "must be greater than zero")
		}
		if in.DefaultPrice.IsNegative() {
			return invalid("default_price", "must not be negative")
		}
	}
	if in.DiscountPercent != nil {
		if in.DiscountPercent.IsNegative() || in.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
			return invalid("discount_percent", "must be between 0 and 100")
		}
	}
	for month, price := range in.MonthlyPrices {
		if month < time.January || month > time.December {
			return invalid("monthly_prices", "month out of range")
		}
		if !price.IsPositive() {
			return invalid("monthly_prices", "every price must be greater than zero")
		}
	}
	return nil
}

// toModel builds the record to persist.  The monthly map is cloned so
// later caller mutation cannot leak into the store.
func (in UpsertInput) toModel() *model.Convention {
	return &model.Convention{
		ClientID:        in.ClientID,
		CategoryID:      in.CategoryID,
		HotelID:         in.HotelID,
		ValidityStart:   in.ValidityStart,
		ValidityEnd:     in.ValidityEnd,
		DefaultPrice:    in.DefaultPrice,
		MonthlyPrices:   in.MonthlyPrices.Clone(),
		DiscountPercent: in.DiscountPercent,
		FlatMonthlyRate: in.FlatMonthlyRate,
		Notes:           in.Notes,
		Active:          in.Active,
	}
}
