// Package clock is the single source of truth for "current time" and for the
// conversion between user-facing local-time text and the UTC instants every
// other component stores and compares. All user input and output lives in one
// fixed display zone; everything past this package is UTC.
package clock

import (
	"errors"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/olebedev/when/rules/ru"
)

// ErrUnparsable is returned by ParseLocal when the text cannot be
// interpreted as a date or date-time.
var ErrUnparsable = errors.New("unparsable date")

// Clock abstracts the current time so the scheduler and the future-date
// validation can share one substitutable source under test.
type Clock interface {
	Now() time.Time
}

// System is the real clock. Now always returns UTC.
type System struct{}

// Now implements Clock.
func (System) Now() time.Time { return time.Now().UTC() }

// Fixed is a clock pinned to a single instant, for tests.
type Fixed struct{ T time.Time }

// Now implements Clock.
func (f Fixed) Now() time.Time { return f.T }

// Explicit day-first layouts tried before natural-language parsing. The
// unpadded forms also accept zero-padded input.
var layouts = []string{
	"2.1.2006 15:04:05",
	"2.1.2006 15:04",
	"2.1.2006",
	"2/1/2006 15:04",
	"2/1/2006",
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
	"2006-1-2",
}

// Normalizer converts free-form local-time text to UTC instants and back.
// It is bound to exactly one display zone for its whole lifetime.
type Normalizer struct {
	loc *time.Location
	w   *when.Parser
	clk Clock
}

// NewNormalizer builds a Normalizer for the given display zone. Natural
// language input is understood in Russian and English, with day-first date
// order.
func NewNormalizer(loc *time.Location, clk Clock) *Normalizer {
	w := when.New(nil)
	w.Add(ru.All...)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Normalizer{loc: loc, w: w, clk: clk}
}

// Location returns the display zone the normalizer is bound to.
func (n *Normalizer) Location() *time.Location { return n.loc }

// Now returns the current instant from the underlying clock.
func (n *Normalizer) Now() time.Time { return n.clk.Now() }

// ParseLocal interprets text as local time in the display zone and returns
// the equivalent UTC instant. Explicit numeric layouts are tried first, then
// Russian/English natural language ("завтра в 19:00", "tomorrow"). Returns
// ErrUnparsable when nothing matches. Whether the instant lies in the future
// is the caller's concern, not this function's.
func (n *Normalizer) ParseLocal(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, ErrUnparsable
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, text, n.loc); err == nil {
			return t.UTC(), nil
		}
	}
	base := n.clk.Now().In(n.loc)
	r, err := n.w.Parse(text, base)
	if err != nil || r == nil {
		return time.Time{}, ErrUnparsable
	}
	return r.Time.UTC(), nil
}

// FormatLocal converts a UTC instant to display text in the fixed zone. The
// time-of-day portion is omitted when it is exactly midnight, so date-only
// values round-trip as date-only text.
func (n *Normalizer) FormatLocal(t time.Time) string {
	lt := t.In(n.loc)
	if lt.Hour() == 0 && lt.Minute() == 0 && lt.Second() == 0 {
		return lt.Format("02.01.2006")
	}
	return lt.Format("02.01.2006 15:04")
}

// FormatLegacyDate reformats a stored YYYY-MM-DD legacy date for display
// without any zone conversion. Unparsable values are shown as stored.
func (n *Normalizer) FormatLegacyDate(s string) string {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return s
	}
	return t.Format("02.01.2006")
}
