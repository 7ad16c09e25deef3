// Package telegram is the messaging platform adapter: long-polling
// updates in, reply delivery and typing indicators out.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/chimera-dev/chimera/internal/config"
)

// Client wraps the Telegram Bot API.
type Client struct {
	bot            *tgbotapi.BotAPI
	pollingTimeout int
	maxLen         int
	typingInterval time.Duration
	log            *zap.Logger
}

// New connects to the Telegram Bot API.
func New(cfg config.TelegramConfig, log *zap.Logger) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		bot:            bot,
		pollingTimeout: cfg.PollingTimeout,
		maxLen:         cfg.MaxMessageLength,
		typingInterval: cfg.TypingInterval,
		log:            log.With(zap.String("component", "telegram")),
	}, nil
}

// Poll feeds inbound text messages to sink until the context is done.
// Sink errors are logged, not fatal: one rejected message must not stop
// the poller.
func (c *Client) Poll(ctx context.Context, sink func(userID, text string) error) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.pollingTimeout
	updates := c.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			userID := strconv.FormatInt(update.Message.Chat.ID, 10)
			if err := sink(userID, update.Message.Text); err != nil {
				c.log.Warn("inbound message rejected",
					zap.String("user_id", userID),
					zap.Error(err))
			}
		}
	}
}

// Deliver sends text to a user, splitting messages that exceed the
// platform length cap.
func (c *Client) Deliver(ctx context.Context, userID, text string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", userID, err)
	}

	for _, chunk := range splitText(text, c.maxLen) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

// Typing shows the typing indicator until the returned stop function is
// called. Telegram clears the indicator after a few seconds, so it is
// re-sent on an interval.
func (c *Client) Typing(ctx context.Context, userID string) func() {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return func() {}
	}

	typingCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(c.typingInterval)
		defer ticker.Stop()

		c.sendTyping(chatID)
		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				c.sendTyping(chatID)
			}
		}
	}()
	return cancel
}

func (c *Client) sendTyping(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := c.bot.Request(action); err != nil {
		c.log.Debug("typing indicator failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// splitText chunks text into pieces of at most maxLen runes.
func splitText(text string, maxLen int) []string {
	if maxLen <= 0 || len([]rune(text)) <= maxLen {
		return []string{text}
	}

	runes := []rune(text)
	var chunks []string
	for len(runes) > 0 {
		n := maxLen
		if n > len(runes) {
			n = len(runes)
		}
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}
	return chunks
}
