// Package scheduler runs the periodic reminder poll. Every tick it loads the
// reservations whose reminder instant has arrived, delivers each reminder,
// and only then marks the row as notified. A failed delivery leaves the row
// untouched so the next tick retries it; marking after delivery means each
// reservation produces at most one recorded notification.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/clock"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/model"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/notify"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/queue"
)

// Store is the slice of the reservation store the scheduler needs.
// *repository.ReservationRepo satisfies it.
type Store interface {
	DueReminders(ctx context.Context, now time.Time) ([]model.Reservation, error)
	MarkNotified(ctx context.Context, id int64) error
}

// PublishFunc reports a dispatched reminder to the message broker. It is
// best effort; a publish failure never blocks or reorders dispatch.
type PublishFunc func(ctx context.Context, event queue.ReminderDispatchedEvent) error

// Scheduler polls the store on a fixed interval and dispatches due reminders.
type Scheduler struct {
	store    Store
	notifier notify.Notifier
	clk      clock.Clock
	log      *zap.Logger
	interval time.Duration
	publish  PublishFunc

	cron *cron.Cron
}

// New builds a scheduler. publish may be nil to disable broker events.
func New(store Store, notifier notify.Notifier, clk clock.Clock, interval time.Duration, publish PublishFunc, log *zap.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		notifier: notifier,
		clk:      clk,
		log:      log,
		interval: interval,
		publish:  publish,
	}
}

// Start begins the periodic poll in a background goroutine owned by cron.
func (s *Scheduler) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc("@every "+s.interval.String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.interval)
		defer cancel()
		s.Tick(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("reminder scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the poll. A tick already in flight finishes on its own.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Tick runs one poll pass. Failures are per reservation: a reminder that
// cannot be delivered is logged and skipped, and the rest of the batch still
// goes out.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clk.Now()
	due, err := s.store.DueReminders(ctx, now)
	if err != nil {
		s.log.Error("load due reminders", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}
	s.log.Info("dispatching reminders", zap.Int("due", len(due)))

	for i := range due {
		r := &due[i]
		if err := s.notifier.Notify(ctx, r); err != nil {
			// Not marked; the reservation stays due and is retried next tick.
			s.log.Error("dispatch reminder",
				zap.Int64("reservation_id", r.ID),
				zap.Int64("owner_id", r.OwnerID),
				zap.Error(err))
			continue
		}
		if err := s.store.MarkNotified(ctx, r.ID); err != nil {
			// The message went out but the flag did not stick; the next tick
			// may deliver a duplicate message, which is preferable to
			// silently dropping reminders.
			s.log.Error("mark notified",
				zap.Int64("reservation_id", r.ID),
				zap.Error(err))
			continue
		}
		s.log.Info("reminder dispatched",
			zap.Int64("reservation_id", r.ID),
			zap.Int64("owner_id", r.OwnerID))
		s.publishDispatched(ctx, r, now)
	}
}

func (s *Scheduler) publishDispatched(ctx context.Context, r *model.Reservation, now time.Time) {
	if s.publish == nil {
		return
	}
	ev := queue.ReminderDispatchedEvent{
		ReservationID: r.ID,
		OwnerID:       r.OwnerID,
		Title:         r.Title,
		Venue:         r.Venue,
		DispatchedAt:  now.UTC().Format(time.RFC3339),
	}
	if r.OccursAt != nil {
		ev.OccursAt = r.OccursAt.UTC().Format(time.RFC3339)
	}
	if r.NotifyAt != nil {
		ev.NotifyAt = r.NotifyAt.UTC().Format(time.RFC3339)
	}
	if err := s.publish(ctx, ev); err != nil {
		s.log.Warn("publish reminder event", zap.Int64("reservation_id", r.ID), zap.Error(err))
	}
}
