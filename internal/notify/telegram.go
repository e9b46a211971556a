package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"
)

// TelegramNotifier sends notifications to a Telegram chat through a bot.
type TelegramNotifier struct {
	bot      *tele.Bot
	chat     *tele.Chat
	threadID int
}

// NewTelegram creates a send-only bot. apiURL may be empty for the public API.
func NewTelegram(token string, chatID int64, threadID int, apiURL string) (*TelegramNotifier, error) {
	b, err := tele.NewBot(tele.Settings{
		URL:     apiURL,
		Token:   token,
		Client:  &http.Client{Timeout: 15 * time.Second},
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: creating bot: %w", err)
	}
	return &TelegramNotifier{
		bot:      b,
		chat:     &tele.Chat{ID: chatID},
		threadID: threadID,
	}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, event Event) error {
	// telebot has no context support; refuse to start once the pass is done.
	if err := ctx.Err(); err != nil {
		return err
	}

	text := fmt.Sprintf("⏰ <b>%s</b>\n%s",
		html.EscapeString(event.Headline()), html.EscapeString(event.Body()))

	_, err := n.bot.Send(n.chat, text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		ThreadID:              n.threadID,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}
