// Package dialog implements the per-user conversation state machines that
// collect a reservation's fields (catalog search or manual entry), normalize
// the date text to a UTC instant and commit the row, plus the smaller edit
// machine over an already-committed reservation. The package is transport
// neutral: events come in as typed values and prompts go out as Reply
// structures the transport only renders.
package dialog

import (
	"sync"
	"time"

	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/catalog"
)

// State identifies where in a conversation a session currently is.
type State int

// Entry-flow and edit-flow states. Terminal is not represented: reaching it
// simply deletes the session.
const (
	StateModeSelect State = iota
	StateSearchQuery
	StateResultPicker
	StateDatePicker
	StateManualTitle
	StateManualVenue
	StateManualDate
	StateReminderSelect
	StateEditFieldSelect
	StateEditTitle
	StateEditVenue
	StateEditDate
	StateEditReminder
)

// EntryMode is the user's choice on the first screen of the entry flow.
type EntryMode string

// Entry modes. The two search modes map onto catalog.Mode; manual skips the
// catalog entirely.
const (
	EntryModeTitle  EntryMode = "title"
	EntryModeVenue  EntryMode = "venue"
	EntryModeManual EntryMode = "manual"
)

// Draft is the in-flight, uncommitted reservation a session accumulates.
// It is never persisted until the date step commits it.
type Draft struct {
	Title       string
	Venue       string
	Source      string
	ExternalRef *int64
	URL         string
}

// Session is one user's conversation state. Exactly one session exists per
// user at a time; starting a new flow replaces any previous one. A session
// lives until the flow reaches a terminal step, is cancelled, or hits an
// unrecoverable error.
type Session struct {
	UserID int64
	State  State

	// Entry flow.
	Mode          EntryMode       // selected entry mode
	Query         string          // last search query, reused as title on manual escape
	Results       []catalog.Result // full result set held for pagination
	Page          int             // zero-based page cursor over Results
	Draft         Draft           // accumulated fields
	Schedule      []catalog.Slot  // candidate schedule of the picked result
	ReservationID int64           // committed row awaiting reminder choice
	OccursAt      time.Time       // schedule time of the committed row

	// Edit flow.
	EditingID int64 // reservation being edited
}

// SessionStore keeps the active sessions keyed by user id. Each session is
// owned by a single conversation, so the store only guards the map itself.
type SessionStore struct {
	mu     sync.Mutex
	byUser map[int64]*Session
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{byUser: make(map[int64]*Session)}
}

// Get returns the session for a user, or nil when none is active.
func (s *SessionStore) Get(userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byUser[userID]
}

// Put installs a session, replacing any previous one for the same user.
func (s *SessionStore) Put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[sess.UserID] = sess
}

// Delete discards a user's session. Discarding an absent session is a no-op.
func (s *SessionStore) Delete(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byUser, userID)
}
