// SPDX-License-Identifier: MIT

// Package notify sends best-effort human alerts summarizing a
// delivered event.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/khaas/earshot/internal/deliver"
	"github.com/khaas/earshot/internal/log"
)

// EmailConfig holds SMTP transport settings and addressing.
type EmailConfig struct {
	Host      string // e.g. smtp.gmail.com
	Port      int    // e.g. 587
	Username  string
	Password  string
	From      string
	Recipient string
	// RecordBaseURL, when set, is used to build a link to the persisted
	// record in the alert body.
	RecordBaseURL string
}

// EmailNotifier sends one alert mail per delivered event. Failures are
// logged by the caller and never retried indefinitely.
type EmailNotifier struct {
	cfg EmailConfig
	// send is swapped in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier builds a notifier over plain SMTP with STARTTLS.
func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, send: smtp.SendMail}
}

// Send formats and sends the alert.
func (n *EmailNotifier) Send(ctx context.Context, s deliver.Summary) error {
	logger := log.WithComponentFromContext(ctx, "notify")

	subject := "Event alert"
	if len(s.Labels) > 0 {
		subject = fmt.Sprintf("Event alert (%s)", s.Labels[0])
	}
	if s.Degraded {
		subject += " [unclassified]"
	}

	msg := buildMessage(n.cfg.From, n.cfg.Recipient, subject, n.body(s))
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)

	done := make(chan error, 1)
	go func() { done <- n.send(addr, auth, n.cfg.From, []string{n.cfg.Recipient}, msg) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send alert mail: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	logger.Info().Str(log.FieldEventID, string(s.EventID)).Msg("alert email sent")
	return nil
}

func (n *EmailNotifier) body(s deliver.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event detected.\n\nEvent ID: %s\n\nTop predictions:\n", s.EventID)
	for i, label := range s.Labels {
		score := 0.0
		if i < len(s.Scores) {
			score = s.Scores[i]
		}
		fmt.Fprintf(&b, "%d. %s (%.3f)\n", i+1, label, score)
	}
	if s.ArtifactURL != "" {
		fmt.Fprintf(&b, "\nArtifact: %s\n", s.ArtifactURL)
	} else {
		b.WriteString("\nArtifact: upload pending\n")
	}
	if n.cfg.RecordBaseURL != "" {
		fmt.Fprintf(&b, "\nRecord: %s/%s\n", strings.TrimRight(n.cfg.RecordBaseURL, "/"), s.EventID)
	}
	b.WriteString("\n----------------------------------------\nAutomatic alert from earshot\n")
	return b.String()
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
