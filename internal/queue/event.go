// Package queue defines message payloads exchanged over the message broker.
package queue

// ConventionUpsertedEvent is published after a convention is created,
// replaced or has its active flag changed. It carries enough context for
// downstream consumers (audit trail, notifications, reporting) to act
// without querying the primary database. Prices travel as strings to
// keep decimal values exact in transit.
type ConventionUpsertedEvent struct {
	ConventionID    uint64  `json:"convention_id"`
	ClientID        uint64  `json:"client_id"`
	CategoryID      uint64  `json:"category_id"`
	HotelID         *uint64 `json:"hotel_id,omitempty"`
	ValidityStart   string  `json:"validity_start"`
	ValidityEnd     *string `json:"validity_end,omitempty"`
	DefaultPrice    string  `json:"default_price"`
	FlatMonthlyRate *string `json:"flat_monthly_rate,omitempty"`
	Active          bool    `json:"active"`
	Action          string  `json:"action"` // "created", "updated" or "status_changed"
	OccurredAt      string  `json:"occurred_at"`
}
