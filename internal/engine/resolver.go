package engine

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/resotel/tariff-conventions/internal/model"
)

// Price sources reported in a Resolution, in precedence order.
const (
	SourceFlatMonthlyRate = "flat_monthly_rate" // flat-package mode, supersedes everything
	SourceMonthlyOverride = "monthly_override"  // per-month override of the default
	SourceDefaultPrice    = "default_price"     // per-night fallback
)

// Resolution is the outcome of a successful price lookup.  Price is the
// undiscounted base figure; DiscountPercent is echoed from the
// convention so the caller can apply it, which is deliberately not done
// here.
type Resolution struct {
	ConventionID    uint64
	Price           decimal.Decimal
	Source          string
	DiscountPercent *decimal.Decimal
}

// Resolver answers "what does this client pay for this category on this
// date".  It is a pure read and safe for unlimited concurrent use.
type Resolver struct {
	store Store
}

// NewResolver returns a Resolver backed by the given store.
func NewResolver(store Store) *Resolver {
	if store == nil {
		panic("nil store passed to NewResolver")
	}
	return &Resolver{store: store}
}

// Resolve returns the applicable price for (clientID, categoryID) on the
// given date.  explicitMonth, when in 1..12, selects which monthly slot
// is consulted instead of date's own month; the validity-window
// containment test always uses date.  This lets callers ask "what would
// January's rate be, evaluated as of this date".  When no active
// convention covers the date, ErrNoConvention is returned.
func (r *Resolver) Resolve(ctx context.Context, clientID, categoryID uint64, date time.Time, explicitMonth int) (*Resolution, error) {
	month := date.Month()
	if explicitMonth >= 1 && explicitMonth <= 12 {
		month = time.Month(explicitMonth)
	}

	matches, err := r.store.FindCovering(ctx, clientID, categoryID, date)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNoConvention
	}

	// The overlap invariant makes more than one match impossible, but
	// migrated or out-of-band data can violate it.  Pick the most
	// recently created record and flag the state.
	selected := matches[0]
	if len(matches) > 1 {
		for _, c := range matches[1:] {
			if c.ID > selected.ID {
				selected = c
			}
		}
		log.Printf("resolver: invariant violation: %d active conventions cover client=%d category=%d on %s; using id=%d",
			len(matches), clientID, categoryID, date.Format(model.DateLayout), selected.ID)
	}

	res := &Resolution{
		ConventionID:    selected.ID,
		DiscountPercent: selected.DiscountPercent,
	}
	switch {
	case selected.FlatMonthlyRate != nil:
		res.Price = *selected.FlatMonthlyRate
		res.Source = SourceFlatMonthlyRate
	default:
		if p, ok := selected.MonthlyPrices.Get(month); ok {
			res.Price = p
			res.Source = SourceMonthlyOverride
		} else {
			res.Price = selected.DefaultPrice
			res.Source = SourceDefaultPrice
		}
	}
	return res, nil
}
