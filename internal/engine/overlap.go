package engine

import (
	"context"
	"time"
)

// Overlaps reports whether two inclusive date windows intersect.  A nil
// end means the window is open-ended and extends to unbounded future.
// The test is boundary-inclusive: a window starting on the exact day
// another ends still counts as overlapping, because both conventions
// would apply at that moment.  The predicate is symmetric.
func Overlaps(aStart time.Time, aEnd *time.Time, bStart time.Time, bEnd *time.Time) bool {
	// a ends before b begins
	if aEnd != nil && aEnd.Before(bStart) {
		return false
	}
	// b ends before a begins
	if bEnd != nil && bEnd.Before(aStart) {
		return false
	}
	return true
}

// HasOverlap reports whether the candidate window [start, end-or-inf]
// intersects any active convention for the (clientID, categoryID) scope
// key.  excludeID, when non-zero, omits that record so an update does
// not conflict with itself.  It returns true on the first intersection
// found.
func HasOverlap(ctx context.Context, s Store, clientID, categoryID uint64, start time.Time, end *time.Time, excludeID uint64) (bool, error) {
	others, err := s.FindActiveByScope(ctx, clientID, categoryID, excludeID)
	if err != nil {
		return false, err
	}
	for _, c := range others {
		if Overlaps(c.ValidityStart, c.ValidityEnd, start, end) {
			return true, nil
		}
	}
	return false, nil
}

// contains reports whether the inclusive window [start, end-or-inf]
// covers the given date.
func contains(start time.Time, end *time.Time, on time.Time) bool {
	if on.Before(start) {
		return false
	}
	if end != nil && end.Before(on) {
		return false
	}
	return true
}
