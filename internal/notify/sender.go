package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"
)

// Directory resolves recipient ids to email addresses. User management lives
// outside this subsystem; this is its interface boundary.
type Directory interface {
	EmailFor(ctx context.Context, recipientID string) (string, error)
}

// IdentityDirectory treats recipient ids that already are email addresses as
// their own address. Deployments with opaque user ids plug in a real
// directory instead.
type IdentityDirectory struct{}

func (IdentityDirectory) EmailFor(ctx context.Context, recipientID string) (string, error) {
	if !strings.Contains(recipientID, "@") {
		return "", fmt.Errorf("no email address known for recipient %s", recipientID)
	}
	return recipientID, nil
}

// LogSender logs deliveries instead of sending them. Default when SMTP is
// not configured.
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) Send(ctx context.Context, ev Event) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info(
		"notification",
		slog.String("kind", string(ev.Kind)),
		slog.String("recipient_id", ev.RecipientID),
		slog.String("appointment_id", ev.AppointmentID.String()),
	)
	return nil
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers events as plain emails.
type SMTPSender struct {
	dialer    *gomail.Dialer
	from      string
	directory Directory
}

func NewSMTPSender(cfg SMTPConfig, directory Directory) *SMTPSender {
	return &SMTPSender{
		dialer:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:      cfg.From,
		directory: directory,
	}
}

func (s *SMTPSender) Send(ctx context.Context, ev Event) error {
	to, err := s.directory.EmailFor(ctx, ev.RecipientID)
	if err != nil {
		return fmt.Errorf("resolve recipient %s: %w", ev.RecipientID, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subjectFor(ev.Kind))
	m.SetBody("text/plain", bodyFor(ev))

	return s.dialer.DialAndSend(m)
}

func subjectFor(kind EventKind) string {
	switch kind {
	case EventCreation:
		return "New appointment request"
	case EventConfirmation:
		return "Your appointment was confirmed"
	case EventCancellation:
		return "Your appointment was cancelled"
	case EventRejection:
		return "Your appointment request was declined"
	case EventReminder:
		return "Appointment reminder"
	case EventBlockCreated:
		return "Your appointment was cancelled due to a schedule block"
	default:
		return "Appointment update"
	}
}

func bodyFor(ev Event) string {
	return fmt.Sprintf(
		"There is an update for appointment %s (%s). Open your schedule for details.",
		ev.AppointmentID, ev.Kind,
	)
}
