// Package telegram sends notifier messages to one Telegram chat.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int // forum topic; 0 for none
}

// Sender posts plain text messages. It never polls for updates.
type Sender struct {
	bot    *tele.Bot
	chat   *tele.Chat
	thread int
}

func New(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Sender{bot: b, chat: &tele.Chat{ID: cfg.ChatID}, thread: cfg.ThreadID}, nil
}

// Send delivers text. telebot has no context support, so ctx only bounds the
// wait; the HTTP client timeout bounds the request itself.
func (s *Sender) Send(ctx context.Context, text string) error {
	done := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(s.chat, text, &tele.SendOptions{
			ThreadID:              s.thread,
			DisableWebPagePreview: true,
		})
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
