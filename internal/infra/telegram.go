package infra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrChatUnreachable means Telegram refused delivery to the chat for good
// (bot blocked, chat deleted or never started). Retrying will not help.
var ErrChatUnreachable = errors.New("telegram: chat unreachable")

// TelegramClient sends text messages and documents through the Bot API.
type TelegramClient struct {
	bot *tgbotapi.BotAPI
	cb  *CircuitBreaker
}

// NewTelegramClient builds a client for <apiURL>/bot<token>/<method>. The bot
// identity is not fetched: the process must start even when Telegram is down.
func NewTelegramClient(apiURL, token string) *TelegramClient {
	bot := &tgbotapi.BotAPI{
		Token:  token,
		Client: &http.Client{Timeout: 60 * time.Second},
		Buffer: 100,
	}
	bot.SetAPIEndpoint(strings.TrimRight(apiURL, "/") + "/bot%s/%s")

	cfg := DefaultCBConfig()
	cfg.IsFailure = func(err error) bool {
		return !errors.Is(err, ErrChatUnreachable) && !errors.Is(err, errRejected)
	}
	return &TelegramClient{bot: bot, cb: NewCircuitBreaker(cfg)}
}

// BreakerState exposes the delivery breaker for health and retry gating.
func (c *TelegramClient) BreakerState() CBState {
	return c.cb.State()
}

// SendMessage posts a plain-text message.
func (c *TelegramClient) SendMessage(ctx context.Context, chatID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(id, text)
	msg.DisableWebPagePreview = true
	return c.request(ctx, "sendMessage", msg)
}

// SendDocument uploads a file with an optional caption.
func (c *TelegramClient) SendDocument(ctx context.Context, chatID string, doc []byte, filename, caption string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	upload := tgbotapi.NewDocument(id, tgbotapi.FileBytes{Name: filename, Bytes: doc})
	upload.Caption = caption
	return c.request(ctx, "sendDocument", upload)
}

// errRejected marks a request Telegram refused for its content; the service
// itself is healthy.
var errRejected = errors.New("telegram: request rejected")

func (c *TelegramClient) request(ctx context.Context, method string, msg tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.cb.Execute(func() error {
		_, err := c.bot.Request(msg)
		return classify(method, err)
	})
}

// classify maps Bot API errors. Only a blocked bot (403) or a missing chat
// makes the chat unreachable; other 400s concern the single request.
func classify(method string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("telegram: %s failed: %w", method, err)
	}
	switch {
	case apiErr.Code == http.StatusForbidden,
		apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "chat not found"):
		return fmt.Errorf("%w: %s", ErrChatUnreachable, apiErr.Message)
	case apiErr.Code == http.StatusBadRequest:
		return fmt.Errorf("%w: %s: %s", errRejected, method, apiErr.Message)
	case apiErr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("telegram: %s rate limited, retry after %ds", method, apiErr.RetryAfter)
	default:
		return fmt.Errorf("telegram: %s returned %d: %s", method, apiErr.Code, apiErr.Message)
	}
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid chat id %q", ErrChatUnreachable, chatID)
	}
	return id, nil
}
