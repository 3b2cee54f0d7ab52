package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/catalog"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/clock"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/model"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/repository"
)

// Machine errors returned to the transport.
var (
	// ErrNoSession means the user has no active conversation; the transport
	// should tell them to start one.
	ErrNoSession = errors.New("dialog: no active session")
	// ErrUnexpectedEvent means the event does not apply to the session's
	// current state. The session is left untouched.
	ErrUnexpectedEvent = errors.New("dialog: unexpected event for state")
)

// Store is the persistence surface the machine needs. *repository.ReservationRepo
// satisfies it.
type Store interface {
	Add(ctx context.Context, r *model.Reservation) (int64, error)
	GetByID(ctx context.Context, id, ownerID int64) (*model.Reservation, error)
	Update(ctx context.Context, id, ownerID int64, upd repository.ReservationUpdate) (bool, error)
}

// pageSize is how many catalog results one picker page shows.
const pageSize = 10

// User-facing prompts. The bot speaks Russian.
const (
	msgChooseMode     = "Как добавить бронь?"
	msgAskTitleQuery  = "Введите название спектакля:"
	msgAskVenueQuery  = "Введите название площадки:"
	msgNoResults      = "Ничего не найдено. Попробуйте другой запрос или введите данные вручную."
	msgPickResult     = "Выберите спектакль:"
	msgAskTitle       = "Введите название:"
	msgAskVenue       = "Введите площадку:"
	msgAskDate        = "Введите дату и время (например, 25.12.2030 19:00):"
	msgBadDate        = "Не удалось распознать дату. Попробуйте ещё раз, например: 25.12.2030 19:00"
	msgPastDate       = "Эта дата уже прошла. Введите будущую дату и время."
	msgPickSlot       = "Выберите дату и время:"
	msgAskReminder    = "Напомнить о спектакле?"
	msgSavedNoRemind  = "Готово! Бронь сохранена."
	msgCancelled      = "Действие отменено."
	msgStorageFailed  = "Произошла ошибка при сохранении. Попробуйте позже."
	msgEditWhat       = "Что изменить?"
	msgEditAskTitle   = "Введите новое название:"
	msgEditAskVenue   = "Введите новую площадку:"
	msgEditAskDate    = "Введите новую дату и время:"
	msgEditNoDate     = "У этой брони не задана дата, напоминание недоступно."
	msgReminderClear  = "🔕 Напоминание убрано."
	msgEditGone       = "Бронь не найдена. Возможно, она была удалена."
)

type transitionKey struct {
	state State
	kind  EventKind
}

type handlerFunc func(ctx context.Context, sess *Session, ev Event) (Reply, error)

// Machine drives the entry and edit conversations. One Machine serves all
// users; per-user state lives in the session store.
type Machine struct {
	sessions *SessionStore
	store    Store
	search   catalog.Searcher
	norm     *clock.Normalizer
	log      *zap.Logger

	handlers map[transitionKey]handlerFunc
}

// NewMachine wires a machine over its collaborators.
func NewMachine(sessions *SessionStore, store Store, search catalog.Searcher, norm *clock.Normalizer, log *zap.Logger) *Machine {
	m := &Machine{
		sessions: sessions,
		store:    store,
		search:   search,
		norm:     norm,
		log:      log,
	}
	m.handlers = map[transitionKey]handlerFunc{
		{StateModeSelect, KindModeSelected}:     m.onModeSelected,
		{StateSearchQuery, KindText}:            m.onSearchQuery,
		{StateSearchQuery, KindManualEscape}:    m.onManualEscape,
		{StateResultPicker, KindResultPicked}:   m.onResultPicked,
		{StateResultPicker, KindPageNext}:       m.onPageNext,
		{StateResultPicker, KindPagePrev}:       m.onPagePrev,
		{StateResultPicker, KindManualEscape}:   m.onManualEscape,
		{StateDatePicker, KindSlotPicked}:       m.onSlotPicked,
		{StateDatePicker, KindSlotConfirm}:      m.onSlotConfirm,
		{StateDatePicker, KindSlotManual}:       m.onSlotManual,
		{StateManualTitle, KindText}:            m.onManualTitle,
		{StateManualVenue, KindText}:            m.onManualVenue,
		{StateManualDate, KindText}:             m.onManualDate,
		{StateReminderSelect, KindReminderChosen}: m.onReminderChosen,

		{StateEditFieldSelect, KindEditField}:     m.onEditField,
		{StateEditTitle, KindText}:                m.onEditTitle,
		{StateEditVenue, KindText}:                m.onEditVenue,
		{StateEditDate, KindText}:                 m.onEditDate,
		{StateEditReminder, KindReminderChosen}:   m.onEditReminder,
	}
	return m
}

// Active reports whether a user has an in-flight conversation. The transport
// uses it to decide whether plain text belongs to the machine.
func (m *Machine) Active(userID int64) bool {
	return m.sessions.Get(userID) != nil
}

// StartAdd begins the entry flow for a user, replacing any previous session.
func (m *Machine) StartAdd(userID int64) Reply {
	m.sessions.Put(&Session{UserID: userID, State: StateModeSelect})
	return Reply{
		Text: msgChooseMode,
		Keyboard: [][]Button{
			row(Button{Label: "🔍 По названию", Data: "mode:title"}),
			row(Button{Label: "📍 По площадке", Data: "mode:venue"}),
			row(Button{Label: "✍️ Ввести вручную", Data: "mode:manual"}),
			row(Button{Label: "❌ Отмена", Data: "cancel"}),
		},
	}
}

// StartEdit begins the edit flow over an existing reservation. The
// reservation is loaded owner-scoped so users cannot edit others' rows.
func (m *Machine) StartEdit(ctx context.Context, userID, reservationID int64) (Reply, error) {
	r, err := m.store.GetByID(ctx, reservationID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return textReply(msgEditGone), nil
		}
		return textReply(msgStorageFailed), err
	}
	m.sessions.Put(&Session{UserID: userID, State: StateEditFieldSelect, EditingID: r.ID})
	return Reply{
		Text: fmt.Sprintf("«%s» — %s", r.Title, msgEditWhat),
		Keyboard: [][]Button{
			row(Button{Label: "📝 Название", Data: "field:title"}),
			row(Button{Label: "📍 Площадка", Data: "field:venue"}),
			row(Button{Label: "📅 Дата", Data: "field:date"}),
			row(Button{Label: "🔔 Напоминание", Data: "field:reminder"}),
			row(Button{Label: "❌ Отмена", Data: "cancel"}),
		},
	}, nil
}

// Cancel discards any active session. Safe to call without one.
func (m *Machine) Cancel(userID int64) Reply {
	m.sessions.Delete(userID)
	return textReply(msgCancelled)
}

// Handle routes one event into the user's session. Cancel is accepted in
// every state; any other event must match the current state or the call
// fails with ErrUnexpectedEvent and the session stays put.
func (m *Machine) Handle(ctx context.Context, userID int64, ev Event) (Reply, error) {
	sess := m.sessions.Get(userID)
	if sess == nil {
		return Reply{}, ErrNoSession
	}
	if ev.Kind == KindCancel {
		return m.Cancel(userID), nil
	}
	h, ok := m.handlers[transitionKey{sess.State, ev.Kind}]
	if !ok {
		return Reply{}, ErrUnexpectedEvent
	}
	return h(ctx, sess, ev)
}

// fail tears the session down after a persistence error so the user is not
// stuck mid-flow against a broken store.
func (m *Machine) fail(sess *Session, err error) (Reply, error) {
	m.sessions.Delete(sess.UserID)
	return textReply(msgStorageFailed), err
}

func (m *Machine) onModeSelected(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	sess.Mode = ev.Mode
	switch ev.Mode {
	case EntryModeTitle:
		sess.State = StateSearchQuery
		return textReply(msgAskTitleQuery), nil
	case EntryModeVenue:
		sess.State = StateSearchQuery
		return textReply(msgAskVenueQuery), nil
	default:
		sess.State = StateManualTitle
		sess.Draft.Source = model.SourceManual
		return textReply(msgAskTitle), nil
	}
}

func (m *Machine) onSearchQuery(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	query := strings.TrimSpace(ev.Text)
	if query == "" {
		return textReply(msgAskTitleQuery), nil
	}
	sess.Query = query

	mode := catalog.ModeTitle
	if sess.Mode == EntryModeVenue {
		mode = catalog.ModeVenue
	}
	results, err := m.search.Search(ctx, query, mode)
	if err != nil {
		// The catalog client degrades to empty results itself; an error here
		// is a context cancellation, so just drop the session.
		m.sessions.Delete(sess.UserID)
		return Reply{}, err
	}
	if len(results) == 0 {
		return Reply{
			Text: msgNoResults,
			Keyboard: [][]Button{
				row(Button{Label: "✍️ Ввести вручную", Data: "manual"}),
				row(Button{Label: "❌ Отмена", Data: "cancel"}),
			},
		}, nil
	}
	sess.Results = results
	sess.Page = 0
	sess.State = StateResultPicker
	return m.resultsPage(sess), nil
}

// resultsPage renders the current page of search results with navigation
// rows. The cursor is clamped so stale next/prev presses cannot run past
// either end.
func (m *Machine) resultsPage(sess *Session) Reply {
	last := (len(sess.Results) - 1) / pageSize
	if sess.Page < 0 {
		sess.Page = 0
	}
	if sess.Page > last {
		sess.Page = last
	}
	start := sess.Page * pageSize
	end := start + pageSize
	if end > len(sess.Results) {
		end = len(sess.Results)
	}

	var kb [][]Button
	for _, r := range sess.Results[start:end] {
		label := r.Title
		if r.Venue != "" {
			label = r.Title + " — " + r.Venue
		}
		kb = append(kb, row(Button{Label: label, Data: fmt.Sprintf("pick:%d", r.ExternalRef)}))
	}
	var nav []Button
	if sess.Page > 0 {
		nav = append(nav, Button{Label: "⬅️", Data: "page:prev"})
	}
	if sess.Page < last {
		nav = append(nav, Button{Label: "➡️", Data: "page:next"})
	}
	if len(nav) > 0 {
		kb = append(kb, nav)
	}
	kb = append(kb,
		row(Button{Label: "✍️ Ввести вручную", Data: "manual"}),
		row(Button{Label: "❌ Отмена", Data: "cancel"}),
	)
	text := fmt.Sprintf("%s (стр. %d/%d)", msgPickResult, sess.Page+1, last+1)
	return Reply{Text: text, Keyboard: kb}
}

func (m *Machine) onPageNext(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	sess.Page++
	return m.resultsPage(sess), nil
}

func (m *Machine) onPagePrev(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	sess.Page--
	return m.resultsPage(sess), nil
}

// onManualEscape switches a search flow to manual entry, carrying the query
// over as a title suggestion when the user searched by title.
func (m *Machine) onManualEscape(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	sess.Draft = Draft{Source: model.SourceManual}
	sess.State = StateManualTitle
	if sess.Mode == EntryModeTitle && sess.Query != "" {
		sess.Draft.Title = sess.Query
		sess.State = StateManualVenue
		return textReply(msgAskVenue), nil
	}
	return textReply(msgAskTitle), nil
}

func (m *Machine) onResultPicked(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	var picked *catalog.Result
	for i := range sess.Results {
		if sess.Results[i].ExternalRef == ev.Ref {
			picked = &sess.Results[i]
			break
		}
	}
	if picked == nil {
		return Reply{}, ErrUnexpectedEvent
	}
	ref := picked.ExternalRef
	sess.Draft = Draft{
		Title:       picked.Title,
		Venue:       picked.Venue,
		Source:      model.SourceCatalog,
		ExternalRef: &ref,
		URL:         picked.URL,
	}
	sess.Schedule = picked.Schedule

	switch len(sess.Schedule) {
	case 0:
		// The catalog knows no upcoming dates; fall back to asking.
		sess.State = StateManualDate
		return textReply(msgAskDate), nil
	case 1:
		sess.State = StateDatePicker
		return Reply{
			Text: fmt.Sprintf("Ближайший сеанс: %s. Записать эту дату?", sess.Schedule[0].Label),
			Keyboard: [][]Button{
				row(Button{Label: "✅ Да", Data: "slot:confirm"}),
				row(Button{Label: "✍️ Другая дата", Data: "slot:manual"}),
				row(Button{Label: "❌ Отмена", Data: "cancel"}),
			},
		}, nil
	default:
		sess.State = StateDatePicker
		var kb [][]Button
		for i, s := range sess.Schedule {
			kb = append(kb, row(Button{Label: s.Label, Data: fmt.Sprintf("slot:%d", i)}))
		}
		kb = append(kb,
			row(Button{Label: "✍️ Другая дата", Data: "slot:manual"}),
			row(Button{Label: "❌ Отмена", Data: "cancel"}),
		)
		return Reply{Text: msgPickSlot, Keyboard: kb}, nil
	}
}

func (m *Machine) onSlotPicked(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	if ev.Slot < 0 || ev.Slot >= len(sess.Schedule) {
		return Reply{}, ErrUnexpectedEvent
	}
	return m.commit(ctx, sess, sess.Schedule[ev.Slot].At)
}

func (m *Machine) onSlotConfirm(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	if len(sess.Schedule) == 0 {
		return Reply{}, ErrUnexpectedEvent
	}
	return m.commit(ctx, sess, sess.Schedule[0].At)
}

func (m *Machine) onSlotManual(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	sess.State = StateManualDate
	return textReply(msgAskDate), nil
}

func (m *Machine) onManualTitle(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	title := strings.TrimSpace(ev.Text)
	if title == "" {
		return textReply(msgAskTitle), nil
	}
	sess.Draft.Title = title
	sess.Draft.Source = model.SourceManual
	sess.State = StateManualVenue
	return textReply(msgAskVenue), nil
}

func (m *Machine) onManualVenue(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	venue := strings.TrimSpace(ev.Text)
	if venue == "" {
		return textReply(msgAskVenue), nil
	}
	sess.Draft.Venue = venue
	sess.State = StateManualDate
	return textReply(msgAskDate), nil
}

func (m *Machine) onManualDate(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	at, ok, reply := m.parseFutureDate(ev.Text)
	if !ok {
		return reply, nil
	}
	return m.commit(ctx, sess, at)
}

// parseFutureDate normalizes entered date text and enforces that the instant
// is strictly in the future. Bad input re-prompts in place; the draft and the
// state survive.
func (m *Machine) parseFutureDate(text string) (time.Time, bool, Reply) {
	at, err := m.norm.ParseLocal(text)
	if err != nil {
		return time.Time{}, false, textReply(msgBadDate)
	}
	if !at.After(m.norm.Now()) {
		return time.Time{}, false, textReply(msgPastDate)
	}
	return at, true, Reply{}
}

// legacyDate renders the stored YYYY-MM-DD calendar date. It is the date in
// the display zone, not in UTC: an evening entry near local midnight must
// keep the day the user typed.
func (m *Machine) legacyDate(at time.Time) string {
	return at.In(m.norm.Location()).Format("2006-01-02")
}

// commit persists the draft and moves the session to the reminder step. The
// row is written before the reminder is chosen, so an abandoned conversation
// still leaves a valid reservation without one.
func (m *Machine) commit(ctx context.Context, sess *Session, at time.Time) (Reply, error) {
	at = at.UTC()
	r := &model.Reservation{
		OwnerID:     sess.UserID,
		Title:       sess.Draft.Title,
		Venue:       sess.Draft.Venue,
		LegacyDate:  m.legacyDate(at),
		OccursAt:    &at,
		Source:      sess.Draft.Source,
		ExternalRef: sess.Draft.ExternalRef,
	}
	if sess.Draft.URL != "" {
		u := sess.Draft.URL
		r.URL = &u
	}
	id, err := m.store.Add(ctx, r)
	if err != nil {
		return m.fail(sess, err)
	}
	m.log.Info("reservation committed",
		zap.Int64("id", id),
		zap.Int64("owner", sess.UserID),
		zap.String("source", r.Source),
		zap.Time("occurs_at", at))

	sess.ReservationID = id
	sess.OccursAt = at
	sess.State = StateReminderSelect
	text := fmt.Sprintf("Бронь сохранена: «%s», %s, %s.\n%s",
		r.Title, r.Venue, m.norm.FormatLocal(at), msgAskReminder)
	return Reply{Text: text, Keyboard: reminderKeyboard(false)}, nil
}

// reminderKeyboard builds the offset picker. The clear row only appears in
// the edit flow, where an existing reminder may need removing.
func reminderKeyboard(withClear bool) [][]Button {
	kb := [][]Button{
		row(
			Button{Label: "За день", Data: "remind:1d"},
			Button{Label: "За 6 часов", Data: "remind:6h"},
		),
		row(
			Button{Label: "За 3 часа", Data: "remind:3h"},
			Button{Label: "За час", Data: "remind:1h"},
		),
		row(Button{Label: "Без напоминания", Data: "remind:none"}),
	}
	if withClear {
		kb = append(kb, row(Button{Label: "🔕 Убрать напоминание", Data: "remind:clear"}))
	}
	kb = append(kb, row(Button{Label: "❌ Отмена", Data: "cancel"}))
	return kb
}

func (m *Machine) onReminderChosen(ctx context.Context, sess *Session, ev Event) (Reply, error) {
	defer m.sessions.Delete(sess.UserID)

	d, ok := ev.Offset.Duration()
	if !ok {
		// none (clear is not offered here, treat it the same)
		return textReply(msgSavedNoRemind), nil
	}
	notifyAt := sess.OccursAt.Add(-d)
	if _, err := m.store.Update(ctx, sess.ReservationID, sess.UserID, repository.ReservationUpdate{NotifyAt: &notifyAt}); err != nil {
		return textReply(msgStorageFailed), err
	}
	return textReply(fmt.Sprintf("🔔 Напоминание установлено на %s.", m.norm.FormatLocal(notifyAt))), nil
}
