package model

import "time"

// Reservation source values. Catalog rows carry the external event id in
// ExternalRef; manual rows never do.
const (
	SourceCatalog = "catalog"
	SourceManual  = "manual"
)

// Reservation records an event a user intends to attend, together with the
// state of its one-shot reminder. All timestamp fields are stored in UTC.
// A reservation is only ever visible or mutable through its (ID, OwnerID)
// pair; there is no cross-user access.
//
// Fields:
//
//	ID          – primary key identifier, generated on insert.
//	OwnerID     – user who owns the reservation.
//	Title       – show/event name.
//	Venue       – theatre or place name.
//	LegacyDate  – date-only string (YYYY-MM-DD) kept for backward display
//	              when OccursAt is absent or date-only.
//	OccursAt    – canonical schedule time; nil on rows written before the
//	              column existed.
//	Source      – provenance of the data ("catalog" or "manual").
//	ExternalRef – id in the external catalog, only when Source is "catalog".
//	URL         – catalog event page, when known.
//	NotifyAt    – when to fire the reminder; nil means none configured.
//	Notified    – true once a reminder has been dispatched for this row.
//	CreatedAt   – set on insert, immutable.
type Reservation struct {
	ID          int64      // reservations.id
	OwnerID     int64      // reservations.owner_id
	Title       string     // reservations.title
	Venue       string     // reservations.venue
	LegacyDate  string     // reservations.legacy_date
	OccursAt    *time.Time // reservations.occurs_at (nullable)
	Source      string     // reservations.source
	ExternalRef *int64     // reservations.external_ref (nullable)
	URL         *string    // reservations.url (nullable)
	NotifyAt    *time.Time // reservations.notify_at (nullable)
	Notified    bool       // reservations.notified
	CreatedAt   time.Time  // reservations.created_at
}

// VenueCount is one row of the venue statistics aggregate: a venue name and
// how many reservations reference it, across all owners.
type VenueCount struct {
	Venue string `json:"venue"`
	Count int    `json:"count"`
}
