package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// sender is the part of *tgbotapi.BotAPI the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram pushes messages to players. Player ids are Telegram chat ids.
type Telegram struct {
	bot      sender
	parallel int
}

func NewTelegram(botToken string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %v", err)
	}
	return &Telegram{bot: bot, parallel: 8}, nil
}

func newTelegramWithSender(s sender) *Telegram {
	return &Telegram{bot: s, parallel: 8}
}

// PushToUsers sends the message to every user and reports an error only when
// none of them could be reached.
func (t *Telegram) PushToUsers(ctx context.Context, userIDs []string, title, body, deepLink string) error {
	if t == nil || t.bot == nil || len(userIDs) == 0 {
		return nil
	}

	// tournament names are user input and may carry markup characters
	text := fmt.Sprintf("*%s*\n%s",
		tgbotapi.EscapeText(tgbotapi.ModeMarkdown, title),
		tgbotapi.EscapeText(tgbotapi.ModeMarkdown, body))
	var delivered atomic.Int32

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.parallel)
	for _, uid := range userIDs {
		chatID, err := strconv.ParseInt(uid, 10, 64)
		if err != nil {
			log.Warnf("push skipped, user %q is not a chat id", uid)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			msg := tgbotapi.NewMessage(chatID, text)
			msg.ParseMode = tgbotapi.ModeMarkdown
			if deepLink != "" {
				msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
					tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Open", deepLink)),
				)
			}
			if _, err := t.bot.Send(msg); err != nil {
				log.Errorf("Failed to send telegram message to chat %d: %v", chatID, err)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if delivered.Load() == 0 {
		return fmt.Errorf("push %q reached none of %d users", title, len(userIDs))
	}
	return nil
}

// Noop is used when no bot token is configured.
type Noop struct{}

func (Noop) PushToUsers(_ context.Context, userIDs []string, title, _, _ string) error {
	log.Debugf("push %q to %d users dropped, notifier disabled", title, len(userIDs))
	return nil
}
