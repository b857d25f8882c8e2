package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/resotel/tariff-conventions/internal/engine"
	"github.com/resotel/tariff-conventions/internal/model"
	"github.com/resotel/tariff-conventions/internal/repository"
)

func validInput() UpsertInput {
	return UpsertInput{
		ClientID:      11,
		CategoryID:    1,
		ValidityStart: day("2024-01-01"),
		ValidityEnd:   dayPtr("2024-12-31"),
		DefaultPrice:  dec("100"),
		MonthlyPrices: model.MonthlyPrices{time.July: dec("130")},
		Active:        true,
	}
}

func TestUpsertCreate(t *testing.T) {
	store := newMemStore()
	orch := NewOrchestrator(store)

	res, err := orch.Upsert(context.Background(), validInput())
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.NotZero(t, res.ID)

	stored, err := store.GetByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.True(t, stored.DefaultPrice.Equal(dec("100")))
	july, ok := stored.MonthlyPrices.Get(time.July)
	require.True(t, ok)
	assert.True(t, july.Equal(dec("130")))
}

func TestUpsertValidationFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*UpsertInput)
		field  string
	}{
		{"missing client", func(in *UpsertInput) { in.ClientID = 0 }, "client_id"},
		{"missing category", func(in *UpsertInput) { in.CategoryID = 0 }, "category_id"},
		{"missing start", func(in *UpsertInput) { in.ValidityStart = time.Time{} }, "validity_start"},
		{"end before start", func(in *UpsertInput) { in.ValidityEnd = dayPtr("2023-12-31") }, "validity_end"},
		{"zero default price", func(in *UpsertInput) { in.DefaultPrice = dec("0") }, "default_price"},
		{"negative default price", func(in *UpsertInput) { in.DefaultPrice = dec("-5") }, "default_price"},
		{"discount above 100", func(in *UpsertInput) { in.DiscountPercent = decPtr("150") }, "discount_percent"},
		{"negative discount", func(in *UpsertInput) { in.DiscountPercent = decPtr("-1") }, "discount_percent"},
		{"zero monthly price", func(in *UpsertInput) { in.MonthlyPrices = model.MonthlyPrices{time.May: dec("0")} }, "monthly_prices"},
		{"zero flat rate", func(in *UpsertInput) { in.FlatMonthlyRate = decPtr("0") }, "flat_monthly_rate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			orch := NewOrchestrator(store)
			in := validInput()
			tc.mutate(&in)

			_, err := orch.Upsert(context.Background(), in)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
			assert.Empty(t, store.rows, "validation failures must not touch the store")
		})
	}
}

func TestUpsertFlatRateAllowsZeroDefault(t *testing.T) {
	store := newMemStore()
	orch := NewOrchestrator(store)
	in := validInput()
	in.DefaultPrice = dec("0")
	in.MonthlyPrices = nil
	in.FlatMonthlyRate = decPtr("1800")

	_, err := orch.Upsert(context.Background(), in)
	assert.NoError(t, err, "default_price is only required in per-night mode")
}

func TestUpsertOverlapConflict(t *testing.T) {
	store := newMemStore()
	orch := NewOrchestrator(store)
	_, err := orch.Upsert(context.Background(), validInput())
	require.NoError(t, err)

	// Same scope, contained window.
	in := validInput()
	in.MonthlyPrices = nil
	in.ValidityStart = day("2024-06-01")
	in.ValidityEnd = dayPtr("2024-08-31")
	_, err = orch.Upsert(context.Background(), in)
	assert.ErrorIs(t, err, ErrOverlapConflict)

	// Same scope, following year: no conflict.
	in.ValidityStart = day("2025-01-01")
	in.ValidityEnd = dayPtr("2025-12-31")
	res, err := orch.Upsert(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Created)

	// Other scope key, overlapping window: no conflict.
	other := validInput()
	other.CategoryID = 2
	_, err = orch.Upsert(context.Background(), other)
	assert.NoError(t, err)
}

func TestUpsertBoundaryDayConflicts(t *testing.T) {
	store := newMemStore()
	orch := NewOrchestrator(store)
	_, err := orch.Upsert(context.Background(), validInput())
	require.NoError(t, err)

	// Starting on the existing window's last day still conflicts.
	in := validInput()
	in.MonthlyPrices = nil
	in.ValidityStart = day("2024-12-31")
	in.ValidityEnd = dayPtr("2025-06-30")
	_, err = orch.Upsert(context.Background(), in)
	assert.ErrorIs(t, err, ErrOverlapConflict)
}

func TestUpsertInactiveSkipsConflict(t *testing.T) {
	store := newMemStore()
	orch := NewOrchestrator(store)
	_, err := orch.Upsert(context.Background(), validInput())
	require.NoError(t, err)

	in := validInput()
	in.Active = false
	res, err := orch.Upsert(context.Background(), in)
	require.NoError(t, err, "inactive records never conflict")
	assert.True(t, res.Created)
}

func TestUpsertSelfUpdateIsIdempotent(t *testing.T) {
	store := newMemStore()
	orch := NewOrchestrator(store)
	created, err := orch.Upsert(context.Background(), validInput())
	require.NoError(t, err)

	in := validInput()
	in.ID = created.ID
	res, err := orch.Upsert(context.Background(), in)
	require.NoError(t, err, "a record must not conflict with itself")
	assert.False(t, res.Created)
	assert.Equal(t, created.ID, res.ID)
}

func TestUpsertUpdateReplacesMonthlyPricesInFull(t *testing.T) {
	store := newMemStore()
	orch := NewOrchestrator(store)
	created, err := orch.Upsert(context.Background(), validInput())
	require.NoError(t, err)

	in := validInput()
	in.ID = created.ID
	in.MonthlyPrices = model.MonthlyPrices{
		time.January: dec("95"),
		time.July:    dec("150"),
	}
	_, err = orch.Upsert(context.Background(), in)
	require.NoError(t, err)

	r := NewResolver(store)
	res, err := r.Resolve(context.Background(), 11, 1, day("2024-07-15"), 0)
	require.NoError(t, err)
	assert.True(t, res.Price.Equal(dec("150")), "July now carries the new override: got %s", res.Price)

	// A month set before but absent from the update reverts to the
	// default price: the map is replaced, never merged.
	stored, err := store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	_, ok := stored.MonthlyPrices.Get(time.February)
	assert.False(t, ok)
	assert.Len(t, stored.MonthlyPrices, 2)
}

func TestUpsertUpdateUnknownID(t *testing.T) {
	store := newMemStore()
	orch := NewOrchestrator(store)

	in := validInput()
	in.ID = 42
	_, err := orch.Upsert(context.Background(), in)
	assert.ErrorIs(t, err, repository.ErrConventionNotFound)
}

func TestSetActiveReactivationChecksOverlap(t *testing.T) {
	store := newMemStore()
	orch := NewOrchestrator(store)
	first, err := orch.Upsert(context.Background(), validInput())
	require.NoError(t, err)

	// Deactivate, then cover the freed window with a new agreement.
	require.NoError(t, orch.SetActive(context.Background(), first.ID, false))

	in := validInput()
	in.DefaultPrice = dec("110")
	_, err = orch.Upsert(context.Background(), in)
	require.NoError(t, err)

	// The dormant record can no longer come back.
	err = orch.SetActive(context.Background(), first.ID, true)
	assert.ErrorIs(t, err, ErrOverlapConflict)

	stored, err := store.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func TestSetActiveDeactivateUnconditional(t *testing.T) {
	store := newMemStore()
	orch := NewOrchestrator(store)
	created, err := orch.Upsert(context.Background(), validInput())
	require.NoError(t, err)

	require.NoError(t, orch.SetActive(context.Background(), created.ID, false))
	stored, err := store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

// TestConcurrentUpsertsSameScope drives the check-then-act hazard: two
// writers racing on the same scope key with overlapping windows must
// produce exactly one success and one conflict, never two committed
// overlapping records.
func TestConcurrentUpsertsSameScope(t *testing.T) {
	for i := 0; i < 50; i++ {
		store := newMemStore()
		orch := NewOrchestrator(store)

		a := validInput()
		a.MonthlyPrices = nil
		a.ValidityStart = day("2024-06-01")
		a.ValidityEnd = dayPtr("2024-08-31")

		b := validInput()
		b.MonthlyPrices = nil
		b.ValidityStart = day("2024-07-01")
		b.ValidityEnd = dayPtr("2024-09-30")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j, in := range []UpsertInput{a, b} {
			wg.Add(1)
			go func(j int, in UpsertInput) {
				defer wg.Done()
				_, errs[j] = orch.Upsert(context.Background(), in)
			}(j, in)
		}
		wg.Wait()

		successes := 0
		conflicts := 0
		for _, err := range errs {
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, ErrOverlapConflict):
				conflicts++
			}
		}
		require.Equal(t, 1, successes, "exactly one writer must win")
		require.Equal(t, 1, conflicts, "the loser must see a conflict")

		actives, err := store.FindActiveByScope(context.Background(), 11, 1, 0)
		require.NoError(t, err)
		require.Len(t, actives, 1, "never two committed overlapping records")
	}
}
