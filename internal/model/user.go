package model

import "time"

// User represents a bot user record as stored in the `users` table. The ID
// is the chat identity supplied by the transport, not generated locally, so
// it doubles as the address reminders are delivered to. A user is created on
// first interaction and only the display name is refreshed afterwards.
//
// Fields:
//
//	ID          – transport-assigned user identifier (primary key).
//	DisplayName – name shown in greetings; refreshed on every /start.
//	CreatedAt   – timestamp of first contact.
type User struct {
	ID          int64     // users.id
	DisplayName string    // users.display_name
	CreatedAt   time.Time // users.created_at
}
