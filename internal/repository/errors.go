// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// dialog machine or the admin handlers to distinguish between different
// failure scenarios without inspecting driver errors. For example,
// ErrNotFound indicates that no row matched the requested (id, owner)
// pair — either because the row does not exist or because it belongs to
// another user; the two cases are deliberately indistinguishable.
package repository

import "errors"

// ErrNotFound is returned when a reservation lookup matches no row owned by
// the caller. Callers should translate this into a user-visible "not found"
// and must not treat it as a storage failure.
var ErrNotFound = errors.New("not found")
