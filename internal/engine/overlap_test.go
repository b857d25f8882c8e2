package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/resotel/tariff-conventions/internal/engine"
)

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name   string
		aStart string
		aEnd   string // empty = open-ended
		bStart string
		bEnd   string
		want   bool
	}{
		{"identical windows", "2024-01-01", "2024-12-31", "2024-01-01", "2024-12-31", true},
		{"contained window", "2024-01-01", "2024-12-31", "2024-06-01", "2024-08-31", true},
		{"partial overlap", "2024-01-01", "2024-06-30", "2024-06-01", "2024-12-31", true},
		{"disjoint windows", "2024-01-01", "2024-05-31", "2024-07-01", "2024-12-31", false},
		{"adjacent by one day", "2024-01-01", "2024-06-30", "2024-07-01", "2024-12-31", false},
		{"start equals other end", "2024-01-01", "2024-06-30", "2024-06-30", "2024-12-31", true},
		{"open-ended covers later window", "2024-01-01", "", "2030-01-01", "2030-12-31", true},
		{"open-ended covers earlier window", "2024-01-01", "", "2020-01-01", "2020-12-31", true},
		{"open-ended starts after bounded ends", "2025-01-01", "", "2024-01-01", "2024-12-31", false},
		{"two open-ended windows", "2024-01-01", "", "2030-06-01", "", true},
		{"single day windows same day", "2024-03-15", "2024-03-15", "2024-03-15", "2024-03-15", true},
		{"single day windows different days", "2024-03-15", "2024-03-15", "2024-03-16", "2024-03-16", false},
	}

	end := func(s string) *time.Time {
		if s == "" {
			return nil
		}
		return dayPtr(s)
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Overlaps(day(tc.aStart), end(tc.aEnd), day(tc.bStart), end(tc.bEnd))
			assert.Equal(t, tc.want, got)
			// The predicate must be symmetric.
			mirrored := Overlaps(day(tc.bStart), end(tc.bEnd), day(tc.aStart), end(tc.aEnd))
			assert.Equal(t, got, mirrored, "Overlaps must be symmetric")
		})
	}
}

func TestHasOverlapExcludesOwnRecord(t *testing.T) {
	store := newMemStore()
	orch := NewOrchestrator(store)
	res, err := orch.Upsert(context.Background(), UpsertInput{
		ClientID:      11,
		CategoryID:    1,
		ValidityStart: day("2024-01-01"),
		ValidityEnd:   dayPtr("2024-12-31"),
		DefaultPrice:  dec("100"),
		Active:        true,
	})
	require.NoError(t, err)

	// The record's own window conflicts with itself unless excluded.
	overlap, err := HasOverlap(context.Background(), store, 11, 1, day("2024-01-01"), dayPtr("2024-12-31"), 0)
	require.NoError(t, err)
	assert.True(t, overlap)

	overlap, err = HasOverlap(context.Background(), store, 11, 1, day("2024-01-01"), dayPtr("2024-12-31"), res.ID)
	require.NoError(t, err)
	assert.False(t, overlap)
}

func TestHasOverlapIgnoresInactive(t *testing.T) {
	store := newMemStore()
	orch := NewOrchestrator(store)
	_, err := orch.Upsert(context.Background(), UpsertInput{
		ClientID:      11,
		CategoryID:    1,
		ValidityStart: day("2024-01-01"),
		ValidityEnd:   dayPtr("2024-12-31"),
		DefaultPrice:  dec("100"),
		Active:        false,
	})
	require.NoError(t, err)

	overlap, err := HasOverlap(context.Background(), store, 11, 1, day("2024-06-01"), dayPtr("2024-08-31"), 0)
	require.NoError(t, err)
	assert.False(t, overlap, "inactive conventions must not participate in overlap checks")
}
