package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for validity dates.  Conventions are
// negotiated at day granularity, so no time-of-day component is carried.
const DateLayout = "2006-01-02"

// Convention represents a negotiated pricing agreement between a client
// and a room category.  A convention applies within its validity window
// and resolves prices in one of two modes: per-night (default price with
// optional per-month overrides) or flat-package (a single monthly rate
// that supersedes everything else).
//
// Fields:
//  ID              - primary key identifier.
//  ClientID        - client receiving the negotiated price.
//  CategoryID      - room category the price applies to.  ClientID and
//                    CategoryID together form the scope key that the
//                    no-overlapping-windows rule is enforced over.
//  HotelID         - optional establishment reference, kept for
//                    reporting only; not part of the scope key.
//  ValidityStart   - first day the agreement applies.
//  ValidityEnd     - last day the agreement applies; nil means
//                    open-ended.
//  DefaultPrice    - per-night fallback price.
//  MonthlyPrices   - sparse per-month overrides of DefaultPrice.
//  DiscountPercent - informational discount in [0,100]; resolution
//                    returns the undiscounted price and leaves applying
//                    the discount to the caller.
//  FlatMonthlyRate - when set, the sole price authority for the window.
//  Notes           - free text.
//  Active          - inactive conventions are excluded from both
//                    resolution and overlap checks.
//  CreatedAt       - creation timestamp.
//  UpdatedAt       - last update timestamp, advanced on every write.
type Convention struct {
	ID              uint64           // conventions.id
	ClientID        uint64           // conventions.client_id
	CategoryID      uint64           // conventions.category_id
	HotelID         *uint64          // conventions.hotel_id (nullable)
	ValidityStart   time.Time        // conventions.validity_start
	ValidityEnd     *time.Time       // conventions.validity_end (nullable)
	DefaultPrice    decimal.Decimal  // conventions.default_price
	MonthlyPrices   MonthlyPrices    // conventions.price_january .. price_december
	DiscountPercent *decimal.Decimal // conventions.discount_percent (nullable)
	FlatMonthlyRate *decimal.Decimal // conventions.flat_monthly_rate (nullable)
	Notes           *string          // conventions.notes (nullable)
	Active          bool             // conventions.active
	CreatedAt       time.Time        // conventions.created_at
	UpdatedAt       time.Time        // conventions.updated_at
}

// MonthlyPrices maps a month of year to a per-night price override.
// Absent months fall back to the convention's default price.  The JSON
// form uses lowercase English month names as keys, e.g.
// {"january": "95.00", "july": "150.00"}.
type MonthlyPrices map[time.Month]decimal.Decimal

// monthNames drives the JSON encoding of MonthlyPrices.  Order matters
// only for documentation; JSON objects are unordered.
var monthNames = map[time.Month]string{
	time.January:   "january",
	time.February:  "february",
	time.March:     "march",
	time.April:     "april",
	time.May:       "may",
	time.June:      "june",
	time.July:      "july",
	time.August:    "august",
	time.September: "september",
	time.October:   "october",
	time.November:  "november",
	time.December:  "december",
}

// monthsByName is the inverse of monthNames, built once at init.
var monthsByName = func() map[string]time.Month {
	m := make(map[string]time.Month, len(monthNames))
	for k, v := range monthNames {
		m[v] = k
	}
	return m
}()

// Get returns the override for the given month and whether one is set.
func (m MonthlyPrices) Get(month time.Month) (decimal.Decimal, bool) {
	p, ok := m[month]
	return p, ok
}

// Clone returns an independent copy of the map.  A nil receiver clones
// to nil so "no overrides" survives a round trip.
func (m MonthlyPrices) Clone() MonthlyPrices {
	if m == nil {
		return nil
	}
	out := make(MonthlyPrices, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the map with lowercase English month names as keys.
func (m MonthlyPrices) MarshalJSON() ([]byte, error) {
	named := make(map[string]decimal.Decimal, len(m))
	for month, price := range m {
		name, ok := monthNames[month]
		if !ok {
			return nil, fmt.Errorf("invalid month %d in monthly prices", int(month))
		}
		named[name] = price
	}
	return json.Marshal(named)
}

// UnmarshalJSON decodes month-name keyed prices.  Unknown month names
// are rejected so a typo does not silently drop an override.
func (m *MonthlyPrices) UnmarshalJSON(data []byte) error {
	var named map[string]decimal.Decimal
	if err := json.Unmarshal(data, &named); err != nil {
		return err
	}
	if named == nil {
		*m = nil
		return nil
	}
	out := make(MonthlyPrices, len(named))
	for name, price := range named {
		month, ok := monthsByName[name]
		if !ok {
			return fmt.Errorf("unknown month name %q in monthly prices", name)
		}
		out[month] = price
	}
	*m = out
	return nil
}
