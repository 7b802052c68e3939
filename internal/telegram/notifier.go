package telegram

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/jutclasses/enrollbot/internal/logger"
)

// Notifier pushes messages to users outside the request/response cycle:
// verdict notifications, admin alerts, and mass broadcasts.
type Notifier struct {
	bot      *tele.Bot
	adminIDs []int64
	delay    time.Duration
}

func NewNotifier(bot *tele.Bot, adminIDs []int64, broadcastDelay time.Duration) *Notifier {
	if broadcastDelay <= 0 {
		broadcastDelay = 100 * time.Millisecond
	}
	return &Notifier{bot: bot, adminIDs: adminIDs, delay: broadcastDelay}
}

// SendToUser delivers a Markdown message to a single user. Failures are
// logged, not returned: an unreachable user must not break the flow.
func (n *Notifier) SendToUser(ctx context.Context, userID int64, text string, markup ...*tele.ReplyMarkup) bool {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	_, err := n.bot.Send(&tele.User{ID: userID}, text, opts)
	if err != nil {
		logger.Warn(ctx, "tg.notify", "send.fail",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return false
	}
	return true
}

// SendPhotoToAdmins forwards a photo (by file id) with a caption and
// inline keyboard to every configured admin.
func (n *Notifier) SendPhotoToAdmins(ctx context.Context, fileID, caption string, markup *tele.ReplyMarkup) {
	photo := &tele.Photo{File: tele.File{FileID: fileID}, Caption: caption}
	for _, id := range n.adminIDs {
		_, err := n.bot.Send(&tele.User{ID: id}, photo, &tele.SendOptions{ReplyMarkup: markup})
		if err != nil {
			logger.Warn(ctx, "tg.notify", "admin.photo.fail",
				slog.Int64("admin_id", id),
				slog.String("err", err.Error()),
			)
		}
	}
}

// NotifyAdmins delivers a Markdown message to every configured admin.
func (n *Notifier) NotifyAdmins(ctx context.Context, text string, markup ...*tele.ReplyMarkup) {
	for _, id := range n.adminIDs {
		n.SendToUser(ctx, id, text, markup...)
	}
}

// BroadcastResult summarizes a finished broadcast.
type BroadcastResult struct {
	Sent   int
	Failed int
}

// Broadcast sends the text to every listed user with a fixed delay
// between sends to stay under Telegram's rate limits. The optional
// progress callback fires every 25 deliveries.
func (n *Notifier) Broadcast(ctx context.Context, userIDs []int64, text string, progress func(done, total int)) BroadcastResult {
	var res BroadcastResult
	total := len(userIDs)
	start := time.Now()

	for i, id := range userIDs {
		if ctx.Err() != nil {
			break
		}
		if n.SendToUser(ctx, id, text) {
			res.Sent++
		} else {
			res.Failed++
		}
		if progress != nil && (i+1)%25 == 0 {
			progress(i+1, total)
		}
		if i < total-1 {
			time.Sleep(n.delay)
		}
	}

	logger.Info(ctx, "tg.notify", "broadcast.done",
		slog.Int("total", total),
		slog.Int("sent", res.Sent),
		slog.Int("failed", res.Failed),
		slog.Duration("duration", logger.Took(start)),
	)
	return res
}
