// Package notify delivers reminder messages to users.
package notify

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"

	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/clock"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/model"
)

// Notifier sends one reminder about a reservation to its owner. A nil error
// means the message was handed to the delivery channel; only then may the
// caller mark the reservation as notified.
type Notifier interface {
	Notify(ctx context.Context, r *model.Reservation) error
}

// TelegramNotifier delivers reminders as Telegram messages to the owner's
// private chat (chat id equals user id for private chats).
type TelegramNotifier struct {
	bot  *telego.Bot
	norm *clock.Normalizer
}

// NewTelegramNotifier returns a notifier over an already-authorized bot.
func NewTelegramNotifier(bot *telego.Bot, norm *clock.Normalizer) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, norm: norm}
}

// Notify sends the reminder text. The reservation's schedule time is shown
// in the display timezone.
func (n *TelegramNotifier) Notify(ctx context.Context, r *model.Reservation) error {
	when := n.norm.FormatLegacyDate(r.LegacyDate)
	if r.OccursAt != nil {
		when = n.norm.FormatLocal(*r.OccursAt)
	}
	text := fmt.Sprintf("🔔 Напоминание: «%s»\n📍 %s\n📅 %s", r.Title, r.Venue, when)
	if r.URL != nil && *r.URL != "" {
		text += "\n🔗 " + *r.URL
	}
	_, err := n.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: r.OwnerID},
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send reminder for reservation %d: %w", r.ID, err)
	}
	return nil
}
