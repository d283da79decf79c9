// Package mail delivers confirmation codes.
package mail

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"yamdb/internal/config"
)

// Message is a plain-text email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Bytes renders m as an RFC 5322 message.
func (m Message) Bytes(date time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// New returns the sender selected by cfg.Backend.
func New(cfg config.Mail, logger *log.Logger) (Sender, error) {
	switch cfg.Backend {
	case config.EmailBackendFile:
		return NewFileSender(cfg.FilePath), nil
	case config.EmailBackendSMTP:
		return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass), nil
	case config.EmailBackendLog:
		return LogSender{Log: logger}, nil
	}
	return nil, fmt.Errorf("unknown email backend %q", cfg.Backend)
}

// LogSender writes messages to a logger. Useful for local development.
type LogSender struct {
	Log *log.Logger
}

func (s LogSender) Send(_ context.Context, m Message) error {
	s.Log.Printf("mail to=%s subject=%q\n%s", m.To, m.Subject, m.Body)
	return nil
}
