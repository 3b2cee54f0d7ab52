package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/repository"
)

func (m *Machine) onEditField(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	switch ev.Field {
	case FieldTitle:
		sess.State = StateEditTitle
		return textReply(msgEditAskTitle), nil
	case FieldVenue:
		sess.State = StateEditVenue
		return textReply(msgEditAskVenue), nil
	case FieldDate:
		sess.State = StateEditDate
		return textReply(msgEditAskDate), nil
	default:
		r, err := m.store.GetByID(ctx, sess.EditingID, sess.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				m.sessions.Delete(sess.UserID)
				return textReply(msgEditGone), nil
			}
			return m.fail(sess, err)
		}
		if r.OccursAt == nil {
			m.sessions.Delete(sess.UserID)
			return textReply(msgEditNoDate), nil
		}
		sess.ReservationID = r.ID
		sess.OccursAt = *r.OccursAt
		sess.State = StateEditReminder
		return Reply{Text: msgAskReminder, Keyboard: reminderKeyboard(r.NotifyAt != nil)}, nil
	}
}

// applyEdit runs one partial update and finishes the edit session. A vanished
// row (deleted between screens) is reported, not treated as an error.
func (m *Machine) applyEdit(ctx context.Context, sess *Session, upd repository.ReservationUpdate, done string) (Reply, error) {
	ok, err := m.store.Update(ctx, sess.EditingID, sess.UserID, upd)
	if err != nil {
		return m.fail(sess, err)
	}
	m.sessions.Delete(sess.UserID)
	if !ok {
		return textReply(msgEditGone), nil
	}
	m.log.Info("reservation edited", zap.Int64("id", sess.EditingID), zap.Int64("owner", sess.UserID))
	return textReply(done), nil
}

func (m *Machine) onEditTitle(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	title := strings.TrimSpace(ev.Text)
	if title == "" {
		return textReply(msgEditAskTitle), nil
	}
	return m.applyEdit(ctx, sess,
		repository.ReservationUpdate{Title: title, HasTitle: true},
		"📝 Название обновлено.")
}

func (m *Machine) onEditVenue(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	venue := strings.TrimSpace(ev.Text)
	if venue == "" {
		return textReply(msgEditAskVenue), nil
	}
	return m.applyEdit(ctx, sess,
		repository.ReservationUpdate{Venue: venue, HasVenue: true},
		"📍 Площадка обновлена.")
}

// onEditDate replaces the schedule time. Any pending reminder was anchored to
// the old instant, so it is cleared and the user is asked to set it again.
func (m *Machine) onEditDate(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	at, ok, reply := m.parseFutureDate(ev.Text)
	if !ok {
		return reply, nil
	}
	at = at.UTC()
	upd := repository.ReservationUpdate{
		OccursAt:    &at,
		LegacyDate:  m.legacyDate(at),
		HasLegacy:   true,
		ClearNotify: true,
	}
	return m.applyEdit(ctx, sess, upd,
		fmt.Sprintf("📅 Дата обновлена: %s. Напоминание сброшено, задайте его заново через редактирование.", m.norm.FormatLocal(at)))
}

func (m *Machine) onEditReminder(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	if ev.Offset == OffsetClear || ev.Offset == OffsetNone {
		return m.applyEdit(ctx, sess, repository.ReservationUpdate{ClearNotify: true}, msgReminderClear)
	}
	d, _ := ev.Offset.Duration()
	notifyAt := sess.OccursAt.Add(-d)
	return m.applyEdit(ctx, sess,
		repository.ReservationUpdate{NotifyAt: &notifyAt},
		fmt.Sprintf("🔔 Напоминание установлено на %s.", m.norm.FormatLocal(notifyAt)))
}
