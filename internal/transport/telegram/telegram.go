// Package telegram is the bot's user-facing transport. It runs the long-poll
// loop, routes commands and free text into the dialog machine, renders the
// machine's replies as messages with inline keyboards, and owns the few
// callbacks (delete confirmation) that never reach the machine.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"

	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/clock"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/dialog"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/repository"
)

// Handler routes Telegram updates to the dialog machine and repositories.
type Handler struct {
	bot       *telego.Bot
	machine   *dialog.Machine
	users     *repository.UserRepo
	resv      *repository.ReservationRepo
	norm      *clock.Normalizer
	clk       clock.Clock
	exportDir string
	log       *zap.Logger
}

// New builds the transport over an authorized bot.
func New(bot *telego.Bot, machine *dialog.Machine, users *repository.UserRepo, resv *repository.ReservationRepo, norm *clock.Normalizer, clk clock.Clock, exportDir string, log *zap.Logger) *Handler {
	return &Handler{
		bot:       bot,
		machine:   machine,
		users:     users,
		resv:      resv,
		norm:      norm,
		clk:       clk,
		exportDir: exportDir,
		log:       log,
	}
}

// Run consumes updates until the context is cancelled. Each update is
// handled inline; processing errors are logged and never stop the loop.
func (h *Handler) Run(ctx context.Context) error {
	updates, err := h.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return err
	}
	h.log.Info("telegram transport started")
	for update := range updates {
		h.handleUpdate(ctx, update)
	}
	return ctx.Err()
}

func (h *Handler) handleUpdate(ctx context.Context, update telego.Update) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		h.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *telego.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	if strings.HasPrefix(text, "/") {
		h.handleCommand(ctx, chatID, userID, msg.From, text)
		return
	}
	if !h.machine.Active(userID) {
		h.send(ctx, chatID, "Я не жду от вас текста. Начните с /add или посмотрите /help.", nil)
		return
	}
	reply, err := h.machine.Handle(ctx, userID, dialog.Event{Kind: dialog.KindText, Text: text})
	h.deliver(ctx, chatID, userID, reply, err)
}

func (h *Handler) handleCallback(ctx context.Context, q *telego.CallbackQuery) {
	// Always acknowledge so the client stops its spinner.
	defer func() {
		_ = h.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{CallbackQueryID: q.ID})
	}()

	userID := q.From.ID
	if q.Message == nil {
		return
	}
	chatID := q.Message.GetChat().ID
	messageID := q.Message.GetMessageID()

	if ev, ok := dialog.ParseCallback(q.Data); ok {
		reply, err := h.machine.Handle(ctx, userID, ev)
		if err != nil {
			h.deliver(ctx, chatID, userID, reply, err)
			return
		}
		h.edit(ctx, chatID, messageID, reply)
		return
	}
	h.handleTransportCallback(ctx, chatID, messageID, userID, q.Data)
}

// deliver renders a machine reply, translating machine errors into hints.
func (h *Handler) deliver(ctx context.Context, chatID, userID int64, reply dialog.Reply, err error) {
	switch {
	case err == nil:
		h.send(ctx, chatID, reply.Text, reply.Keyboard)
	case errors.Is(err, dialog.ErrNoSession):
		h.send(ctx, chatID, "Нет активного действия. Начните с /add.", nil)
	case errors.Is(err, dialog.ErrUnexpectedEvent):
		// A stale button press; ignore quietly.
	default:
		h.log.Error("dialog failed", zap.Int64("user_id", userID), zap.Error(err))
		if reply.Text != "" {
			h.send(ctx, chatID, reply.Text, reply.Keyboard)
		}
	}
}

// send posts a new message. Failures are logged; Telegram delivery is not
// something we can retry meaningfully here.
func (h *Handler) send(ctx context.Context, chatID int64, text string, kb [][]dialog.Button) {
	params := &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   text,
	}
	if markup := renderKeyboard(kb); markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := h.bot.SendMessage(ctx, params); err != nil {
		h.log.Error("send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// edit rewrites the message a callback came from, falling back to a fresh
// message when the original can no longer be edited.
func (h *Handler) edit(ctx context.Context, chatID int64, messageID int, reply dialog.Reply) {
	params := &telego.EditMessageTextParams{
		ChatID:    telego.ChatID{ID: chatID},
		MessageID: messageID,
		Text:      reply.Text,
	}
	if markup := renderKeyboard(reply.Keyboard); markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := h.bot.EditMessageText(ctx, params); err != nil {
		h.send(ctx, chatID, reply.Text, reply.Keyboard)
	}
}

func renderKeyboard(kb [][]dialog.Button) *telego.InlineKeyboardMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]telego.InlineKeyboardButton, 0, len(kb))
	for _, r := range kb {
		row := make([]telego.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			row = append(row, tu.InlineKeyboardButton(b.Label).WithCallbackData(b.Data))
		}
		rows = append(rows, row)
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func parseIDToken(data, prefix string) (int64, bool) {
	raw, found := strings.CutPrefix(data, prefix)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
