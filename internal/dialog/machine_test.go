package dialog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/catalog"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/clock"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/model"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/repository"
)

type updateCall struct {
	id, ownerID int64
	upd         repository.ReservationUpdate
}

type fakeStore struct {
	nextID    int64
	added     []model.Reservation
	addErr    error
	updates   []updateCall
	updateErr error
	byID      map[int64]model.Reservation
}

func (s *fakeStore) Add(_ context.Context, r *model.Reservation) (int64, error) {
	if s.addErr != nil {
		return 0, s.addErr
	}
	s.nextID++
	r.ID = s.nextID
	s.added = append(s.added, *r)
	return s.nextID, nil
}

func (s *fakeStore) GetByID(_ context.Context, id, ownerID int64) (*model.Reservation, error) {
	r, ok := s.byID[id]
	if !ok || r.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (s *fakeStore) Update(_ context.Context, id, ownerID int64, upd repository.ReservationUpdate) (bool, error) {
	if s.updateErr != nil {
		return false, s.updateErr
	}
	s.updates = append(s.updates, updateCall{id: id, ownerID: ownerID, upd: upd})
	_, ok := s.byID[id]
	return ok || id <= s.nextID, nil
}

type fakeSearcher struct {
	results   []catalog.Result
	lastQuery string
	lastMode  catalog.Mode
}

func (f *fakeSearcher) Search(_ context.Context, query string, mode catalog.Mode) ([]catalog.Result, error) {
	f.lastQuery = query
	f.lastMode = mode
	return f.results, nil
}

func testMachine(t *testing.T, store *fakeStore, search catalog.Searcher) *Machine {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	norm := clock.NewNormalizer(loc, clock.Fixed{T: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)})
	if search == nil {
		search = &fakeSearcher{}
	}
	return NewMachine(NewSessionStore(), store, search, norm, zap.NewNop())
}

const userID = int64(7)

func TestManualFlowCommitsAndSetsReminder(t *testing.T) {
	store := &fakeStore{}
	m := testMachine(t, store, nil)
	ctx := context.Background()

	reply := m.StartAdd(userID)
	assert.Contains(t, reply.Text, "Как добавить")

	_, err := m.Handle(ctx, userID, Event{Kind: KindModeSelected, Mode: EntryModeManual})
	require.NoError(t, err)
	_, err = m.Handle(ctx, userID, Event{Kind: KindText, Text: "Чайка"})
	require.NoError(t, err)
	_, err = m.Handle(ctx, userID, Event{Kind: KindText, Text: "МХТ"})
	require.NoError(t, err)
	reply, err = m.Handle(ctx, userID, Event{Kind: KindText, Text: "25.12.2030 19:00"})
	require.NoError(t, err)

	require.Len(t, store.added, 1)
	r := store.added[0]
	assert.Equal(t, userID, r.OwnerID)
	assert.Equal(t, "Чайка", r.Title)
	assert.Equal(t, "МХТ", r.Venue)
	assert.Equal(t, model.SourceManual, r.Source)
	assert.Equal(t, "2030-12-25", r.LegacyDate)
	require.NotNil(t, r.OccursAt)
	assert.Equal(t, time.Date(2030, 12, 25, 16, 0, 0, 0, time.UTC), *r.OccursAt)
	assert.Contains(t, reply.Text, "Бронь сохранена")
	require.NotEmpty(t, reply.Keyboard)

	// One hour before curtain.
	reply, err = m.Handle(ctx, userID, Event{Kind: KindReminderChosen, Offset: Offset1Hour})
	require.NoError(t, err)
	require.Len(t, store.updates, 1)
	call := store.updates[0]
	assert.Equal(t, r.ID, call.id)
	assert.Equal(t, userID, call.ownerID)
	require.NotNil(t, call.upd.NotifyAt)
	assert.Equal(t, time.Date(2030, 12, 25, 15, 0, 0, 0, time.UTC), *call.upd.NotifyAt)
	assert.Contains(t, reply.Text, "Напоминание установлено")
	assert.False(t, m.Active(userID), "session must end after the reminder step")
}

func TestCommitKeepsLocalCalendarDateNearMidnight(t *testing.T) {
	store := &fakeStore{}
	m := testMachine(t, store, nil)
	ctx := context.Background()

	m.StartAdd(userID)
	mustHandle(t, m, ctx, Event{Kind: KindModeSelected, Mode: EntryModeManual})
	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "Щелкунчик"})
	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "Большой"})
	// 00:30 Moscow on Jan 1 is still Dec 31 in UTC.
	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "01.01.2031 0:30"})

	require.Len(t, store.added, 1)
	r := store.added[0]
	require.NotNil(t, r.OccursAt)
	assert.Equal(t, time.Date(2030, 12, 31, 21, 30, 0, 0, time.UTC), *r.OccursAt)
	assert.Equal(t, "2031-01-01", r.LegacyDate, "calendar date follows the display zone")
}

func TestManualFlowReminderNoneSkipsUpdate(t *testing.T) {
	store := &fakeStore{}
	m := testMachine(t, store, nil)
	ctx := context.Background()

	m.StartAdd(userID)
	mustHandle(t, m, ctx, Event{Kind: KindModeSelected, Mode: EntryModeManual})
	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "Гамлет"})
	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "Сатирикон"})
	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "10.01.2031"})

	reply := mustHandle(t, m, ctx, Event{Kind: KindReminderChosen, Offset: OffsetNone})
	assert.Contains(t, reply.Text, "сохранена")
	assert.Empty(t, store.updates)
	assert.False(t, m.Active(userID))
}

func TestBadDateRepromptsAndKeepsDraft(t *testing.T) {
	store := &fakeStore{}
	m := testMachine(t, store, nil)
	ctx := context.Background()

	m.StartAdd(userID)
	mustHandle(t, m, ctx, Event{Kind: KindModeSelected, Mode: EntryModeManual})
	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "Чайка"})
	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "МХТ"})

	reply := mustHandle(t, m, ctx, Event{Kind: KindText, Text: "абракадабра"})
	assert.Contains(t, reply.Text, "Не удалось распознать дату")
	assert.Empty(t, store.added, "nothing committed on bad input")
	assert.True(t, m.Active(userID))

	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "25.12.2030 19:00"})
	require.Len(t, store.added, 1)
	assert.Equal(t, "Чайка", store.added[0].Title)
}

func TestPastDateIsRejected(t *testing.T) {
	store := &fakeStore{}
	m := testMachine(t, store, nil)
	ctx := context.Background()

	m.StartAdd(userID)
	mustHandle(t, m, ctx, Event{Kind: KindModeSelected, Mode: EntryModeManual})
	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "Чайка"})
	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "МХТ"})

	// The fixed clock sits at 2025-06-01.
	reply := mustHandle(t, m, ctx, Event{Kind: KindText, Text: "25.12.2020 19:00"})
	assert.Equal(t, msgPastDate, reply.Text)
	assert.Empty(t, store.added)
	assert.True(t, m.Active(userID))
}

func TestCatalogFlowCarriesProvenance(t *testing.T) {
	at1 := time.Date(2030, 12, 25, 16, 0, 0, 0, time.UTC)
	at2 := time.Date(2030, 12, 26, 16, 0, 0, 0, time.UTC)
	search := &fakeSearcher{results: []catalog.Result{{
		ExternalRef: 98765,
		Title:       "Чайка",
		Venue:       "МХТ",
		URL:         "https://example.org/event",
		Schedule: []catalog.Slot{
			{At: at1, Label: "25.12.2030 19:00"},
			{At: at2, Label: "26.12.2030 19:00"},
		},
	}}}
	store := &fakeStore{}
	m := testMachine(t, store, search)
	ctx := context.Background()

	m.StartAdd(userID)
	mustHandle(t, m, ctx, Event{Kind: KindModeSelected, Mode: EntryModeTitle})
	reply := mustHandle(t, m, ctx, Event{Kind: KindText, Text: "чайка"})
	assert.Equal(t, "чайка", search.lastQuery)
	assert.Equal(t, catalog.ModeTitle, search.lastMode)
	assert.Contains(t, reply.Text, "Выберите")

	reply = mustHandle(t, m, ctx, Event{Kind: KindResultPicked, Ref: 98765})
	assert.Contains(t, reply.Text, "Выберите дату")

	mustHandle(t, m, ctx, Event{Kind: KindSlotPicked, Slot: 1})
	require.Len(t, store.added, 1)
	r := store.added[0]
	assert.Equal(t, model.SourceCatalog, r.Source)
	require.NotNil(t, r.ExternalRef)
	assert.Equal(t, int64(98765), *r.ExternalRef)
	require.NotNil(t, r.URL)
	assert.Equal(t, "https://example.org/event", *r.URL)
	require.NotNil(t, r.OccursAt)
	assert.Equal(t, at2, *r.OccursAt)
}

func TestCatalogSingleSlotConfirm(t *testing.T) {
	at := time.Date(2030, 12, 25, 16, 0, 0, 0, time.UTC)
	search := &fakeSearcher{results: []catalog.Result{{
		ExternalRef: 98765,
		Title:       "Чайка",
		Venue:       "МХТ",
		Schedule:    []catalog.Slot{{At: at, Label: "25.12.2030 19:00"}},
	}}}
	store := &fakeStore{}
	m := testMachine(t, store, search)
	ctx := context.Background()

	m.StartAdd(userID)
	mustHandle(t, m, ctx, Event{Kind: KindModeSelected, Mode: EntryModeTitle})
	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "чайка"})
	mustHandle(t, m, ctx, Event{Kind: KindResultPicked, Ref: 98765})
	mustHandle(t, m, ctx, Event{Kind: KindSlotConfirm})

	require.Len(t, store.added, 1)
	require.NotNil(t, store.added[0].OccursAt)
	assert.Equal(t, at, *store.added[0].OccursAt)
}

func TestNoResultsOffersManualEscapeWithQueryAsTitle(t *testing.T) {
	store := &fakeStore{}
	m := testMachine(t, store, &fakeSearcher{})
	ctx := context.Background()

	m.StartAdd(userID)
	mustHandle(t, m, ctx, Event{Kind: KindModeSelected, Mode: EntryModeTitle})
	reply := mustHandle(t, m, ctx, Event{Kind: KindText, Text: "Редкий спектакль"})
	assert.Contains(t, reply.Text, "Ничего не найдено")

	reply = mustHandle(t, m, ctx, Event{Kind: KindManualEscape})
	assert.Equal(t, msgAskVenue, reply.Text, "title is prefilled from the query")

	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "Где-то"})
	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "25.12.2030 19:00"})
	require.Len(t, store.added, 1)
	assert.Equal(t, "Редкий спектакль", store.added[0].Title)
	assert.Equal(t, model.SourceManual, store.added[0].Source)
}

func TestNoResultsManualEscapeInVenueModeStartsBlank(t *testing.T) {
	store := &fakeStore{}
	m := testMachine(t, store, &fakeSearcher{})
	ctx := context.Background()

	m.StartAdd(userID)
	mustHandle(t, m, ctx, Event{Kind: KindModeSelected, Mode: EntryModeVenue})
	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "Неизвестная площадка"})

	// A venue query is no title suggestion, so manual entry starts from scratch.
	reply := mustHandle(t, m, ctx, Event{Kind: KindManualEscape})
	assert.Equal(t, msgAskTitle, reply.Text)
	assert.True(t, m.Active(userID))
}

func TestPaginationClampsAtBounds(t *testing.T) {
	results := make([]catalog.Result, 15)
	for i := range results {
		results[i] = catalog.Result{ExternalRef: int64(i + 1), Title: fmt.Sprintf("Спектакль %d", i+1), Venue: "Т"}
	}
	store := &fakeStore{}
	m := testMachine(t, store, &fakeSearcher{results: results})
	ctx := context.Background()

	m.StartAdd(userID)
	mustHandle(t, m, ctx, Event{Kind: KindModeSelected, Mode: EntryModeTitle})
	reply := mustHandle(t, m, ctx, Event{Kind: KindText, Text: "спектакль"})
	assert.Contains(t, reply.Text, "стр. 1/2")

	reply = mustHandle(t, m, ctx, Event{Kind: KindPageNext})
	assert.Contains(t, reply.Text, "стр. 2/2")

	// Past the end: stays on the last page.
	reply = mustHandle(t, m, ctx, Event{Kind: KindPageNext})
	assert.Contains(t, reply.Text, "стр. 2/2")

	reply = mustHandle(t, m, ctx, Event{Kind: KindPagePrev})
	assert.Contains(t, reply.Text, "стр. 1/2")
	reply = mustHandle(t, m, ctx, Event{Kind: KindPagePrev})
	assert.Contains(t, reply.Text, "стр. 1/2")
}

func TestCancelEndsSessionEverywhere(t *testing.T) {
	store := &fakeStore{}
	m := testMachine(t, store, nil)
	ctx := context.Background()

	m.StartAdd(userID)
	mustHandle(t, m, ctx, Event{Kind: KindModeSelected, Mode: EntryModeManual})
	reply, err := m.Handle(ctx, userID, Event{Kind: KindCancel})
	require.NoError(t, err)
	assert.Equal(t, msgCancelled, reply.Text)
	assert.False(t, m.Active(userID))
	assert.Empty(t, store.added)
}

func TestUnexpectedEventLeavesStateUntouched(t *testing.T) {
	store := &fakeStore{}
	m := testMachine(t, store, nil)
	ctx := context.Background()

	m.StartAdd(userID)
	_, err := m.Handle(ctx, userID, Event{Kind: KindReminderChosen, Offset: Offset1Hour})
	assert.ErrorIs(t, err, ErrUnexpectedEvent)
	assert.True(t, m.Active(userID))

	// The session still accepts the event it was waiting for.
	reply := mustHandle(t, m, ctx, Event{Kind: KindModeSelected, Mode: EntryModeManual})
	assert.Equal(t, msgAskTitle, reply.Text)
}

func TestHandleWithoutSession(t *testing.T) {
	m := testMachine(t, &fakeStore{}, nil)
	_, err := m.Handle(context.Background(), userID, Event{Kind: KindText, Text: "привет"})
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestAddFailureTearsDownSession(t *testing.T) {
	store := &fakeStore{addErr: errors.New("db down")}
	m := testMachine(t, store, nil)
	ctx := context.Background()

	m.StartAdd(userID)
	mustHandle(t, m, ctx, Event{Kind: KindModeSelected, Mode: EntryModeManual})
	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "Чайка"})
	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "МХТ"})

	reply, err := m.Handle(ctx, userID, Event{Kind: KindText, Text: "25.12.2030 19:00"})
	require.Error(t, err)
	assert.Equal(t, msgStorageFailed, reply.Text)
	assert.False(t, m.Active(userID))
}

func TestEditTitle(t *testing.T) {
	occursAt := time.Date(2030, 12, 25, 16, 0, 0, 0, time.UTC)
	store := &fakeStore{byID: map[int64]model.Reservation{
		42: {ID: 42, OwnerID: userID, Title: "Чайка", Venue: "МХТ", OccursAt: &occursAt},
	}}
	m := testMachine(t, store, nil)
	ctx := context.Background()

	reply, err := m.StartEdit(ctx, userID, 42)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Чайка")

	mustHandle(t, m, ctx, Event{Kind: KindEditField, Field: FieldTitle})
	reply = mustHandle(t, m, ctx, Event{Kind: KindText, Text: "Дядя Ваня"})
	assert.Contains(t, reply.Text, "обновлено")

	require.Len(t, store.updates, 1)
	assert.True(t, store.updates[0].upd.HasTitle)
	assert.Equal(t, "Дядя Ваня", store.updates[0].upd.Title)
	assert.False(t, m.Active(userID))
}

func TestEditDateClearsReminder(t *testing.T) {
	occursAt := time.Date(2030, 12, 25, 16, 0, 0, 0, time.UTC)
	notifyAt := occursAt.Add(-time.Hour)
	store := &fakeStore{byID: map[int64]model.Reservation{
		42: {ID: 42, OwnerID: userID, Title: "Чайка", Venue: "МХТ", OccursAt: &occursAt, NotifyAt: &notifyAt},
	}}
	m := testMachine(t, store, nil)
	ctx := context.Background()

	_, err := m.StartEdit(ctx, userID, 42)
	require.NoError(t, err)
	mustHandle(t, m, ctx, Event{Kind: KindEditField, Field: FieldDate})
	mustHandle(t, m, ctx, Event{Kind: KindText, Text: "05.03.2031 9:05"})

	require.Len(t, store.updates, 1)
	upd := store.updates[0].upd
	require.NotNil(t, upd.OccursAt)
	assert.Equal(t, time.Date(2031, 3, 5, 6, 5, 0, 0, time.UTC), *upd.OccursAt)
	assert.True(t, upd.HasLegacy)
	assert.Equal(t, "2031-03-05", upd.LegacyDate)
	assert.True(t, upd.ClearNotify, "a reminder anchored to the old date must not survive")
}

func TestEditReminderClear(t *testing.T) {
	occursAt := time.Date(2030, 12, 25, 16, 0, 0, 0, time.UTC)
	notifyAt := occursAt.Add(-time.Hour)
	store := &fakeStore{byID: map[int64]model.Reservation{
		42: {ID: 42, OwnerID: userID, Title: "Чайка", Venue: "МХТ", OccursAt: &occursAt, NotifyAt: &notifyAt},
	}}
	m := testMachine(t, store, nil)
	ctx := context.Background()

	_, err := m.StartEdit(ctx, userID, 42)
	require.NoError(t, err)
	reply := mustHandle(t, m, ctx, Event{Kind: KindEditField, Field: FieldReminder})
	assert.Contains(t, flattenData(reply.Keyboard), "remind:clear", "clear is offered for an existing reminder")

	mustHandle(t, m, ctx, Event{Kind: KindReminderChosen, Offset: OffsetClear})
	require.Len(t, store.updates, 1)
	assert.True(t, store.updates[0].upd.ClearNotify)
}

func TestEditReminderWithoutDateIsRefused(t *testing.T) {
	store := &fakeStore{byID: map[int64]model.Reservation{
		42: {ID: 42, OwnerID: userID, Title: "Старая запись", Venue: "Где-то"},
	}}
	m := testMachine(t, store, nil)
	ctx := context.Background()

	_, err := m.StartEdit(ctx, userID, 42)
	require.NoError(t, err)
	reply := mustHandle(t, m, ctx, Event{Kind: KindEditField, Field: FieldReminder})
	assert.Equal(t, msgEditNoDate, reply.Text)
	assert.False(t, m.Active(userID))
}

func TestStartEditForeignReservation(t *testing.T) {
	store := &fakeStore{byID: map[int64]model.Reservation{
		42: {ID: 42, OwnerID: 99, Title: "Чужая", Venue: "Т"},
	}}
	m := testMachine(t, store, nil)

	reply, err := m.StartEdit(context.Background(), userID, 42)
	require.NoError(t, err)
	assert.Equal(t, msgEditGone, reply.Text)
	assert.False(t, m.Active(userID))
}

func TestParseCallbackRoundTrip(t *testing.T) {
	ev, ok := ParseCallback("mode:venue")
	require.True(t, ok)
	assert.Equal(t, KindModeSelected, ev.Kind)
	assert.Equal(t, EntryModeVenue, ev.Mode)

	ev, ok = ParseCallback("pick:98765")
	require.True(t, ok)
	assert.Equal(t, int64(98765), ev.Ref)

	ev, ok = ParseCallback("remind:6h")
	require.True(t, ok)
	assert.Equal(t, Offset6Hours, ev.Offset)

	_, ok = ParseCallback("del:42")
	assert.False(t, ok, "transport-owned callbacks are not machine events")
	_, ok = ParseCallback("remind:2w")
	assert.False(t, ok)
}

func mustHandle(t *testing.T, m *Machine, ctx context.Context, ev Event) Reply {
	t.Helper()
	reply, err := m.Handle(ctx, userID, ev)
	require.NoError(t, err)
	return reply
}

func flattenData(kb [][]Button) []string {
	var out []string
	for _, row := range kb {
		for _, b := range row {
			out = append(out, b.Data)
		}
	}
	return out
}
