package telegram

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"

	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/dialog"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/export"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/model"
)

const helpText = `Я помогаю не забывать о театральных бронях.

/add — добавить бронь (поиск по афише или вручную)
/list — мои брони
/export — выгрузить брони файлом
/venues — площадки по числу броней
/cancel — прервать текущее действие
/help — эта справка`

func (h *Handler) handleCommand(ctx context.Context, chatID, userID int64, from *telego.User, text string) {
	cmd := text
	if i := strings.IndexAny(cmd, " @"); i > 0 {
		cmd = cmd[:i]
	}
	switch cmd {
	case "/start":
		h.cmdStart(ctx, chatID, userID, from)
	case "/help":
		h.send(ctx, chatID, helpText, nil)
	case "/add":
		reply := h.machine.StartAdd(userID)
		h.send(ctx, chatID, reply.Text, reply.Keyboard)
	case "/list":
		h.cmdList(ctx, chatID, userID)
	case "/export":
		h.cmdExport(ctx, chatID, userID)
	case "/venues":
		h.cmdVenues(ctx, chatID)
	case "/cancel":
		reply := h.machine.Cancel(userID)
		h.send(ctx, chatID, reply.Text, nil)
	default:
		h.send(ctx, chatID, "Не знаю такой команды. Посмотрите /help.", nil)
	}
}

func (h *Handler) cmdStart(ctx context.Context, chatID, userID int64, from *telego.User) {
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	if from.Username != "" {
		name = "@" + from.Username
	}
	if err := h.users.Upsert(ctx, userID, name); err != nil {
		h.log.Error("upsert user", zap.Int64("user_id", userID), zap.Error(err))
	}
	h.send(ctx, chatID, "🎭 Привет! "+helpText, nil)
}

// itemLine renders one reservation for the list view.
func (h *Handler) itemLine(r *model.Reservation) string {
	when := h.norm.FormatLegacyDate(r.LegacyDate)
	if r.OccursAt != nil {
		when = h.norm.FormatLocal(*r.OccursAt)
	}
	line := fmt.Sprintf("🎭 «%s»\n📍 %s\n📅 %s", r.Title, r.Venue, when)
	if r.NotifyAt != nil && !r.Notified {
		line += fmt.Sprintf("\n🔔 напомню %s", h.norm.FormatLocal(*r.NotifyAt))
	}
	if r.URL != nil && *r.URL != "" {
		line += "\n🔗 " + *r.URL
	}
	return line
}

// cmdList sends each reservation as its own message so every item carries
// its own edit and delete buttons.
func (h *Handler) cmdList(ctx context.Context, chatID, userID int64) {
	items, err := h.resv.ListByOwner(ctx, userID)
	if err != nil {
		h.log.Error("list reservations", zap.Int64("user_id", userID), zap.Error(err))
		h.send(ctx, chatID, "Не удалось загрузить брони. Попробуйте позже.", nil)
		return
	}
	if len(items) == 0 {
		h.send(ctx, chatID, "У вас пока нет броней. Добавьте первую: /add", nil)
		return
	}
	for i := range items {
		r := &items[i]
		kb := [][]dialog.Button{{
			{Label: "✏️ Изменить", Data: fmt.Sprintf("edit:%d", r.ID)},
			{Label: "🗑 Удалить", Data: fmt.Sprintf("del:%d", r.ID)},
			{Label: "📄 Файл", Data: fmt.Sprintf("export_one:%d", r.ID)},
		}}
		h.send(ctx, chatID, h.itemLine(r), kb)
	}
}

func (h *Handler) cmdExport(ctx context.Context, chatID, userID int64) {
	items, err := h.resv.ListByOwner(ctx, userID)
	if err != nil {
		h.log.Error("export list", zap.Int64("user_id", userID), zap.Error(err))
		h.send(ctx, chatID, "Не удалось подготовить выгрузку. Попробуйте позже.", nil)
		return
	}
	if len(items) == 0 {
		h.send(ctx, chatID, "Выгружать нечего: броней нет.", nil)
		return
	}
	path, err := export.Write(h.exportDir, userID, items, h.norm, h.clk.Now())
	if err != nil {
		h.log.Error("write export", zap.Int64("user_id", userID), zap.Error(err))
		h.send(ctx, chatID, "Не удалось подготовить выгрузку. Попробуйте позже.", nil)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		h.log.Error("open export", zap.String("path", path), zap.Error(err))
		h.send(ctx, chatID, "Не удалось подготовить выгрузку. Попробуйте позже.", nil)
		return
	}
	defer f.Close()
	_, err = h.bot.SendDocument(ctx, &telego.SendDocumentParams{
		ChatID:   telego.ChatID{ID: chatID},
		Document: tu.File(f),
		Caption:  fmt.Sprintf("Ваши брони: %d шт.", len(items)),
	})
	if err != nil {
		h.log.Error("send export", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// sendReservationFile exports one reservation and sends it as a document.
func (h *Handler) sendReservationFile(ctx context.Context, chatID int64, r *model.Reservation) {
	path, err := export.WriteOne(h.exportDir, r, h.norm)
	if err != nil {
		h.log.Error("write single export", zap.Int64("reservation_id", r.ID), zap.Error(err))
		h.send(ctx, chatID, "Не удалось подготовить выгрузку. Попробуйте позже.", nil)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		h.log.Error("open single export", zap.String("path", path), zap.Error(err))
		h.send(ctx, chatID, "Не удалось подготовить выгрузку. Попробуйте позже.", nil)
		return
	}
	defer f.Close()
	_, err = h.bot.SendDocument(ctx, &telego.SendDocumentParams{
		ChatID:   telego.ChatID{ID: chatID},
		Document: tu.File(f),
		Caption:  fmt.Sprintf("«%s»", r.Title),
	})
	if err != nil {
		h.log.Error("send single export", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *Handler) cmdVenues(ctx context.Context, chatID int64) {
	stats, err := h.resv.VenueStats(ctx)
	if err != nil {
		h.log.Error("venue stats", zap.Error(err))
		h.send(ctx, chatID, "Не удалось загрузить статистику. Попробуйте позже.", nil)
		return
	}
	if len(stats) == 0 {
		h.send(ctx, chatID, "Пока нет ни одной брони.", nil)
		return
	}
	var sb strings.Builder
	sb.WriteString("Площадки по числу броней:\n")
	for _, s := range stats {
		fmt.Fprintf(&sb, "📍 %s — %d\n", s.Venue, s.Count)
	}
	h.send(ctx, chatID, sb.String(), nil)
}
