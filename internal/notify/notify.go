// Package notify delivers user-facing messages and documents and holds the
// message texts.
package notify

import (
	"context"
	"fmt"
	"strings"

	"kasabot/internal/infra"

	"github.com/rs/zerolog/log"
)

// Notifier delivers a text or a document to the owning user.
type Notifier interface {
	NotifyText(ctx context.Context, userID, text string) error
	NotifyDocument(ctx context.Context, userID string, doc []byte, filename, caption string) error
}

// ── Telegram ─────────────────────────────────────────────────────────────────

// Telegram sends to the user's private chat; the user id is the chat id.
type Telegram struct {
	client *infra.TelegramClient
}

func NewTelegram(client *infra.TelegramClient) *Telegram {
	return &Telegram{client: client}
}

func (t *Telegram) NotifyText(ctx context.Context, userID, text string) error {
	return t.client.SendMessage(ctx, userID, text)
}

func (t *Telegram) NotifyDocument(ctx context.Context, userID string, doc []byte, filename, caption string) error {
	return t.client.SendDocument(ctx, userID, doc, filename, caption)
}

// ── E-mail copy ──────────────────────────────────────────────────────────────

type mailSender interface {
	Send(to []string, subject, body string, attachment []byte, filename string) error
}

// Email mails a copy of every notification to a fixed list of addresses.
type Email struct {
	mailer mailSender
	to     []string
}

// NewEmail parses a comma-separated recipient list.
func NewEmail(mailer mailSender, recipients string) *Email {
	var to []string
	for _, r := range strings.Split(recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	return &Email{mailer: mailer, to: to}
}

func (e *Email) NotifyText(_ context.Context, userID, text string) error {
	return e.mailer.Send(e.to, subject(text), body(userID, text), nil, "")
}

func (e *Email) NotifyDocument(_ context.Context, userID string, doc []byte, filename, caption string) error {
	return e.mailer.Send(e.to, subject(caption), body(userID, caption), doc, filename)
}

func subject(text string) string {
	first, _, _ := strings.Cut(text, "\n")
	if first == "" {
		first = "document"
	}
	return "kasabot: " + first
}

func body(userID, text string) string {
	return fmt.Sprintf("Telegram user %s\n\n%s\n", userID, text)
}

// ── Fan-out ──────────────────────────────────────────────────────────────────

// Multi delivers through the primary notifier and mirrors to copies. Only the
// primary's error is returned; copy failures are logged.
type Multi struct {
	primary Notifier
	copies  []Notifier
}

func NewMulti(primary Notifier, copies ...Notifier) *Multi {
	return &Multi{primary: primary, copies: copies}
}

func (m *Multi) NotifyText(ctx context.Context, userID, text string) error {
	if err := m.primary.NotifyText(ctx, userID, text); err != nil {
		return err
	}
	for _, c := range m.copies {
		if err := c.NotifyText(ctx, userID, text); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("notify: copy failed")
		}
	}
	return nil
}

func (m *Multi) NotifyDocument(ctx context.Context, userID string, doc []byte, filename, caption string) error {
	if err := m.primary.NotifyDocument(ctx, userID, doc, filename, caption); err != nil {
		return err
	}
	for _, c := range m.copies {
		if err := c.NotifyDocument(ctx, userID, doc, filename, caption); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Str("file", filename).Msg("notify: copy failed")
		}
	}
	return nil
}
