// Package queue defines message payloads exchanged over the message broker.
package queue

// ReminderDispatchedEvent is published after a reminder has been delivered
// and the reservation marked as notified. It carries enough information for
// downstream consumers to log or trigger analytics without querying the
// primary database.
type ReminderDispatchedEvent struct {
	ReservationID int64  `json:"reservation_id"`
	OwnerID       int64  `json:"owner_id"`
	Title         string `json:"title"`
	Venue         string `json:"venue"`
	OccursAt      string `json:"occurs_at"`
	NotifyAt      string `json:"notify_at"`
	DispatchedAt  string `json:"dispatched_at"`
}
