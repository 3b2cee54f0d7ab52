package telegram

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/dialog"
	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/repository"
)

// handleTransportCallback owns the callbacks that never enter the dialog
// machine: starting an edit flow from a list item and the two-step delete
// confirmation.
func (h *Handler) handleTransportCallback(ctx context.Context, chatID int64, messageID int, userID int64, data string) {
	if id, ok := parseIDToken(data, "edit:"); ok {
		reply, err := h.machine.StartEdit(ctx, userID, id)
		if err != nil {
			h.log.Error("start edit", zap.Int64("user_id", userID), zap.Int64("reservation_id", id), zap.Error(err))
		}
		if reply.Text != "" {
			h.send(ctx, chatID, reply.Text, reply.Keyboard)
		}
		return
	}
	if id, ok := parseIDToken(data, "del:"); ok {
		h.edit(ctx, chatID, messageID, dialog.Reply{
			Text: "Точно удалить эту бронь?",
			Keyboard: [][]dialog.Button{{
				{Label: "🗑 Да, удалить", Data: fmt.Sprintf("del_yes:%d", id)},
				{Label: "↩️ Нет", Data: "del_no"},
			}},
		})
		return
	}
	if id, ok := parseIDToken(data, "del_yes:"); ok {
		deleted, err := h.resv.Delete(ctx, id, userID)
		if err != nil {
			h.log.Error("delete reservation", zap.Int64("user_id", userID), zap.Int64("reservation_id", id), zap.Error(err))
			h.edit(ctx, chatID, messageID, dialog.Reply{Text: "Не удалось удалить. Попробуйте позже."})
			return
		}
		if !deleted {
			h.edit(ctx, chatID, messageID, dialog.Reply{Text: "Бронь не найдена. Возможно, она уже удалена."})
			return
		}
		h.edit(ctx, chatID, messageID, dialog.Reply{Text: "🗑 Бронь удалена."})
		return
	}
	if id, ok := parseIDToken(data, "export_one:"); ok {
		r, err := h.resv.GetByID(ctx, id, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				h.send(ctx, chatID, "Бронь не найдена. Возможно, она уже удалена.", nil)
				return
			}
			h.log.Error("load reservation for export", zap.Int64("reservation_id", id), zap.Error(err))
			h.send(ctx, chatID, "Не удалось подготовить выгрузку. Попробуйте позже.", nil)
			return
		}
		h.sendReservationFile(ctx, chatID, r)
		return
	}
	if data == "del_no" {
		h.edit(ctx, chatID, messageID, dialog.Reply{Text: "Удаление отменено."})
		return
	}
	h.log.Debug("unknown callback", zap.String("data", data))
}
