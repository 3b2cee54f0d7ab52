package dialog

import (
	"strconv"
	"strings"
	"time"
)

// EventKind is the type of input arriving at a session.
type EventKind int

// Event kinds. Text carries free-form message text; the rest are produced
// from inline-keyboard callback data by ParseCallback.
const (
	KindText EventKind = iota
	KindModeSelected
	KindResultPicked
	KindPageNext
	KindPagePrev
	KindManualEscape
	KindSlotPicked
	KindSlotConfirm
	KindSlotManual
	KindReminderChosen
	KindEditField
	KindCancel
)

// Event is one unit of user input routed into a machine.
type Event struct {
	Kind EventKind

	Text   string    // KindText
	Mode   EntryMode // KindModeSelected
	Ref    int64     // KindResultPicked, catalog external reference
	Slot   int       // KindSlotPicked, index into the offered schedule
	Offset Offset    // KindReminderChosen
	Field  Field     // KindEditField
}

// Offset is a reminder lead time chosen from the fixed set.
type Offset string

// Reminder offsets. OffsetNone commits without a reminder; OffsetClear is
// only offered in the edit flow and removes an existing one.
const (
	Offset1Day   Offset = "1d"
	Offset6Hours Offset = "6h"
	Offset3Hours Offset = "3h"
	Offset1Hour  Offset = "1h"
	OffsetNone   Offset = "none"
	OffsetClear  Offset = "clear"
)

// Duration returns the lead time of the offset. The second return is false
// for the two non-duration choices (none, clear).
func (o Offset) Duration() (time.Duration, bool) {
	switch o {
	case Offset1Day:
		return 24 * time.Hour, true
	case Offset6Hours:
		return 6 * time.Hour, true
	case Offset3Hours:
		return 3 * time.Hour, true
	case Offset1Hour:
		return time.Hour, true
	}
	return 0, false
}

// Field names a reservation attribute targeted by the edit flow.
type Field string

// Editable fields.
const (
	FieldTitle    Field = "title"
	FieldVenue    Field = "venue"
	FieldDate     Field = "date"
	FieldReminder Field = "reminder"
)

// ParseCallback decodes inline-keyboard callback data into an Event. The
// second return is false for data this package does not own, letting the
// transport route its own callbacks (delete confirmations and the like)
// past the machine.
func ParseCallback(data string) (Event, bool) {
	switch data {
	case "manual":
		return Event{Kind: KindManualEscape}, true
	case "page:next":
		return Event{Kind: KindPageNext}, true
	case "page:prev":
		return Event{Kind: KindPagePrev}, true
	case "slot:confirm":
		return Event{Kind: KindSlotConfirm}, true
	case "slot:manual":
		return Event{Kind: KindSlotManual}, true
	case "cancel":
		return Event{Kind: KindCancel}, true
	}
	key, arg, ok := strings.Cut(data, ":")
	if !ok {
		return Event{}, false
	}
	switch key {
	case "mode":
		switch EntryMode(arg) {
		case EntryModeTitle, EntryModeVenue, EntryModeManual:
			return Event{Kind: KindModeSelected, Mode: EntryMode(arg)}, true
		}
	case "pick":
		ref, err := strconv.ParseInt(arg, 10, 64)
		if err == nil {
			return Event{Kind: KindResultPicked, Ref: ref}, true
		}
	case "slot":
		idx, err := strconv.Atoi(arg)
		if err == nil {
			return Event{Kind: KindSlotPicked, Slot: idx}, true
		}
	case "remind":
		switch Offset(arg) {
		case Offset1Day, Offset6Hours, Offset3Hours, Offset1Hour, OffsetNone, OffsetClear:
			return Event{Kind: KindReminderChosen, Offset: Offset(arg)}, true
		}
	case "field":
		switch Field(arg) {
		case FieldTitle, FieldVenue, FieldDate, FieldReminder:
			return Event{Kind: KindEditField, Field: Field(arg)}, true
		}
	}
	return Event{}, false
}
