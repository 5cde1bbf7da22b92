package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// StageChangeNotice is the human readable summary sent by notifiers.
type StageChangeNotice struct {
	DealID     string
	DealName   string
	FromStage  string
	ToStage    string
	ChangedBy  string
	ChangedAt  time.Time
	Reason     string
	Warnings   []string
	Regression bool
	Overridden bool
}

// NewStageChangeNotice renders stage keys as display names.
func NewStageChangeNotice(catalog *StageCatalog, r TransitionResult) StageChangeNotice {
	n := StageChangeNotice{
		DealID:     r.NewState.DealID,
		DealName:   r.NewState.Name,
		FromStage:  displayName(catalog, r.PreviousStageKey),
		ToStage:    displayName(catalog, r.NewState.CurrentStageKey),
		ChangedBy:  r.Record.ChangedBy,
		ChangedAt:  r.Record.ChangedAt,
		Warnings:   r.Warnings,
		Regression: r.Record.Regression,
		Overridden: r.Record.OverrodeWarning,
	}
	if r.Record.Reason != nil {
		n.Reason = *r.Record.Reason
	}
	if n.DealName == "" {
		n.DealName = n.DealID
	}
	return n
}

func displayName(catalog *StageCatalog, key string) string {
	if key == "" {
		return "(none)"
	}
	if st, err := catalog.GetStage(key); err == nil {
		return st.DisplayName
	}
	return key
}

// Notifier delivers stage change notices to people.
type Notifier interface {
	NotifyStageChange(ctx context.Context, n StageChangeNotice) error
}

// mailSender is satisfied by *gomail.Dialer.
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type emailNotifier struct {
	dialer mailSender
	from   string
	to     []string
}

func NewEmailNotifier(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string, recipients []string) Notifier {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &emailNotifier{
		dialer: dialer,
		from:   fromEmail,
		to:     recipients,
	}
}

func (s *emailNotifier) NotifyStageChange(ctx context.Context, n StageChangeNotice) error {
	if len(s.to) == 0 {
		return nil
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.to...)
	m.SetHeader("Subject", fmt.Sprintf("Deal %s moved to %s", n.DealName, n.ToStage))
	m.SetBody("text/html", renderNoticeHTML(n))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send stage change email: %w", err)
	}
	return nil
}

func renderNoticeHTML(n StageChangeNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h3>%s</h3>", html.EscapeString(n.DealName))
	fmt.Fprintf(&b, "<p>Moved from <strong>%s</strong> to <strong>%s</strong> by %s on %s.</p>",
		html.EscapeString(n.FromStage), html.EscapeString(n.ToStage),
		html.EscapeString(n.ChangedBy), n.ChangedAt.Format("2006-01-02 15:04"))
	if n.Reason != "" {
		fmt.Fprintf(&b, "<p>Reason: %s</p>", html.EscapeString(n.Reason))
	}
	if n.Regression {
		b.WriteString("<p>This deal moved backwards in the pipeline.</p>")
	}
	if len(n.Warnings) > 0 {
		b.WriteString("<ul>")
		for _, w := range n.Warnings {
			fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(w))
		}
		b.WriteString("</ul>")
	}
	return b.String()
}

// MultiNotifier fans a notice out to several notifiers and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) NotifyStageChange(ctx context.Context, n StageChangeNotice) error {
	var errs []error
	for _, nt := range m {
		if err := nt.NotifyStageChange(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
