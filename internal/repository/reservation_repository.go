package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/model"
)

// ReservationRepo provides CRUD operations for reservations and the two
// specialized queries the reminder engine needs: the due-reminder scan and
// the venue aggregate. All timestamp columns are stored in UTC. Ownership
// is enforced in the WHERE clause of every per-row statement, so a row
// belonging to another user behaves exactly like a missing row.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// ReservationUpdate carries the partial-update fields for Update. Only
// non-nil fields are written. NotifyAt and ClearNotify cover the two reminder
// transitions: a non-nil NotifyAt sets the reminder and resets the notified
// flag, ClearNotify removes the reminder and resets the flag. Setting both
// is a programming error; ClearNotify wins.
type ReservationUpdate struct {
	Title       string
	Venue       string
	OccursAt    *time.Time
	LegacyDate  string
	NotifyAt    *time.Time
	ClearNotify bool
	HasTitle    bool
	HasVenue    bool
	HasLegacy   bool
}

// Add inserts a new reservation and returns its generated id. Rows are
// always inserted with notified = 0 and no reminder configured; the reminder
// is attached afterwards through Update. Duplicate rows are permitted by
// design — the store does not second-guess the user.
func (r *ReservationRepo) Add(ctx context.Context, res *model.Reservation) (int64, error) {
	const q = `INSERT INTO reservations
		(owner_id, title, venue, legacy_date, occurs_at, source, external_ref, url, notify_at, notified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, 0)`
	var occursAt interface{}
	if res.OccursAt != nil {
		occursAt = res.OccursAt.UTC()
	}
	var extRef interface{}
	if res.ExternalRef != nil {
		extRef = *res.ExternalRef
	}
	var url interface{}
	if res.URL != nil {
		url = *res.URL
	}
	source := res.Source
	if source == "" {
		source = model.SourceManual
	}
	result, err := r.db.ExecContext(ctx, q,
		res.OwnerID, res.Title, res.Venue, res.LegacyDate, occursAt, source, extRef, url)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

const reservationColumns = `id, owner_id, title, venue, legacy_date, occurs_at,
	source, external_ref, url, notify_at, notified, created_at`

// scanReservation reads one row into a model.Reservation, converting the
// nullable columns. It works for both *sql.Row and *sql.Rows.
func scanReservation(scan func(dest ...interface{}) error) (*model.Reservation, error) {
	var (
		res      model.Reservation
		occursAt sql.NullTime
		extRef   sql.NullInt64
		url      sql.NullString
		notifyAt sql.NullTime
	)
	err := scan(&res.ID, &res.OwnerID, &res.Title, &res.Venue, &res.LegacyDate,
		&occursAt, &res.Source, &extRef, &url, &notifyAt, &res.Notified, &res.CreatedAt)
	if err != nil {
		return nil, err
	}
	if occursAt.Valid {
		t := occursAt.Time.UTC()
		res.OccursAt = &t
	}
	if extRef.Valid {
		v := extRef.Int64
		res.ExternalRef = &v
	}
	if url.Valid {
		u := url.String
		res.URL = &u
	}
	if notifyAt.Valid {
		t := notifyAt.Time.UTC()
		res.NotifyAt = &t
	}
	return &res, nil
}

// ListByOwner returns all reservations of one owner ordered by schedule time
// ascending (falling back to the legacy date string for rows without
// occurs_at) and by creation time descending for ties. The result is a
// snapshot at call time.
func (r *ReservationRepo) ListByOwner(ctx context.Context, ownerID int64) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + `
		FROM reservations
		WHERE owner_id = ?
		ORDER BY COALESCE(occurs_at, STR_TO_DATE(legacy_date, '%Y-%m-%d')) ASC, created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID returns a single reservation scoped to its owner. A row owned by
// someone else is reported as ErrNotFound, same as a missing row.
func (r *ReservationRepo) GetByID(ctx context.Context, id, ownerID int64) (*model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + `
		FROM reservations
		WHERE id = ? AND owner_id = ?`
	res, err := scanReservation(r.db.QueryRowContext(ctx, q, id, ownerID).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Delete removes a reservation owned by the caller. It returns true iff a
// row matched and was removed. No dependent rows exist, so nothing cascades.
func (r *ReservationRepo) Delete(ctx context.Context, id, ownerID int64) (bool, error) {
	const q = `DELETE FROM reservations WHERE id = ? AND owner_id = ?`
	result, err := r.db.ExecContext(ctx, q, id, ownerID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Update applies a partial update to a reservation owned by the caller. Only
// the fields flagged in upd change. Assigning a new notify_at resets the
// notified flag so the scheduler picks the reminder up again; clearing the
// reminder does the same. The whole update is a single statement, so it
// either fully applies or not at all. Returns false when no fields were
// supplied or no row matched.
func (r *ReservationRepo) Update(ctx context.Context, id, ownerID int64, upd ReservationUpdate) (bool, error) {
	sets := make([]string, 0, 7)
	args := make([]interface{}, 0, 8)
	if upd.HasTitle {
		sets = append(sets, "title = ?")
		args = append(args, upd.Title)
	}
	if upd.HasVenue {
		sets = append(sets, "venue = ?")
		args = append(args, upd.Venue)
	}
	if upd.OccursAt != nil {
		sets = append(sets, "occurs_at = ?")
		args = append(args, upd.OccursAt.UTC())
	}
	if upd.HasLegacy {
		sets = append(sets, "legacy_date = ?")
		args = append(args, upd.LegacyDate)
	}
	switch {
	case upd.ClearNotify:
		sets = append(sets, "notify_at = NULL", "notified = 0")
	case upd.NotifyAt != nil:
		sets = append(sets, "notify_at = ?", "notified = 0")
		args = append(args, upd.NotifyAt.UTC())
	}
	if len(sets) == 0 {
		return false, nil
	}
	args = append(args, id, ownerID)
	q := `UPDATE reservations SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND owner_id = ?`
	result, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DueReminders returns the reservations whose reminder time has passed and
// has not been dispatched yet, ordered by notify_at ascending. Rows without
// a reminder or already notified never appear.
func (r *ReservationRepo) DueReminders(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + `
		FROM reservations
		WHERE notify_at IS NOT NULL AND notify_at <= ? AND notified = 0
		ORDER BY notify_at ASC`
	rows, err := r.db.QueryContext(ctx, q, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkNotified records that a reminder was dispatched. The notified guard in
// the WHERE clause makes the call idempotent and lets a concurrent reminder
// reassignment win the race: once notify_at is rewritten (which resets the
// flag), a stale mark for the old reminder still only flips the flag once.
func (r *ReservationRepo) MarkNotified(ctx context.Context, id int64) error {
	const q = `UPDATE reservations SET notified = 1 WHERE id = ? AND notified = 0`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// VenueStats returns venues and their reservation counts across all owners,
// ordered by count descending then venue ascending, capped at 100 entries.
func (r *ReservationRepo) VenueStats(ctx context.Context) ([]model.VenueCount, error) {
	const q = `SELECT venue, COUNT(*) AS cnt
		FROM reservations
		GROUP BY venue
		ORDER BY cnt DESC, venue ASC
		LIMIT 100`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.VenueCount, 0)
	for rows.Next() {
		var vc model.VenueCount
		if err := rows.Scan(&vc.Venue, &vc.Count); err != nil {
			return nil, err
		}
		out = append(out, vc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
