// Package telegramNotifier posts sync results to an operations chat.
// Notification failures are logged and swallowed: a missed message must
// never fail a sync run that already succeeded.
package telegramNotifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyopark/stock_master_bridge/config"
	"github.com/hyopark/stock_master_bridge/internal/model"
	"github.com/hyopark/stock_master_bridge/utils"
	tele "gopkg.in/telebot.v4"
)

type TelegramNotifier struct {
	bot    *tele.Bot
	chatID int64
}

// New returns nil when the token or chat is not configured; a nil notifier
// is a valid no-op receiver.
func New(cfg *config.Config) *TelegramNotifier {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		return nil
	}

	// Outbound only: no poller, the bot never consumes updates.
	bot, err := tele.NewBot(tele.Settings{
		Token: cfg.Telegram.Token,
		OnError: func(err error, c tele.Context) {
			slog.Error("telegram bot error", slog.String("err", err.Error()))
		},
	})
	if err != nil {
		slog.Error("failed to create telegram notifier, notifications disabled", slog.String("err", err.Error()))
		return nil
	}

	return &TelegramNotifier{bot: bot, chatID: cfg.Telegram.ChatID}
}

func (n *TelegramNotifier) NotifySyncResult(ctx context.Context, summary model.ChangeSummary, runErr error) {
	if n == nil {
		return
	}

	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TelegramNotifier.NotifySyncResult"

	status := "ok"
	if runErr != nil {
		status = fmt.Sprintf("failed: %s", runErr)
	}

	summaryJson, err := json.Marshal(summary)
	if err != nil {
		slog.Error("can't marshal summary", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return
	}

	text := fmt.Sprintf(
		"security master sync %s at %s\n%s",
		status,
		time.Now().Format(time.RFC3339),
		string(summaryJson),
	)

	_, err = n.bot.Send(tele.ChatID(n.chatID), text)
	if err != nil {
		slog.Error("failed to send telegram notification", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}
}
