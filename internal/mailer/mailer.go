package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"

	"regdesk/internal/dto"
)

var ErrNoRecipient = errors.New("no recipient for registration e-mail")

type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	Organizer string
	EventName string
	// TLS is one of "mandatory", "opportunistic" or "none".
	TLS     string
	Timeout time.Duration
}

type Mailer struct {
	cfg Config
	log *zerolog.Logger
}

func New(cfg Config, log *zerolog.Logger) *Mailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.EventName == "" {
		cfg.EventName = "the event"
	}
	return &Mailer{cfg: cfg, log: log}
}

func (m *Mailer) recipients(msg dto.NotificationMessage) []string {
	var to []string
	if e := strings.TrimSpace(msg.Email); e != "" {
		to = append(to, e)
	}
	if o := strings.TrimSpace(m.cfg.Organizer); o != "" && !strings.EqualFold(o, msg.Email) {
		to = append(to, o)
	}
	return to
}

func (m *Mailer) buildMessage(msg dto.NotificationMessage) (*mail.Msg, error) {
	to := m.recipients(msg)
	if len(to) == 0 {
		return nil, ErrNoRecipient
	}

	out := mail.NewMsg()
	if err := out.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := out.To(to...); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	out.Subject(fmt.Sprintf("Registration confirmed: %s", m.cfg.EventName))

	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\n\n", msg.Name)
	fmt.Fprintf(&body, "Your registration for %s has been recorded.\n\n", m.cfg.EventName)
	fmt.Fprintf(&body, "Payment reference: %s\n", msg.PaymentReference)
	fmt.Fprintf(&body, "Amount: %s\n", msg.Amount)
	fmt.Fprintf(&body, "Events: %s\n", strings.Join(msg.Events, ", "))
	if len(msg.Credential) > 0 {
		body.WriteString("\nPlease bring the attached QR code to the venue.\n")
	}
	out.SetBodyString(mail.TypeTextPlain, body.String())

	if len(msg.Credential) > 0 {
		name := "credential-" + msg.PaymentReference + ".png"
		if err := out.AttachReader(name, bytes.NewReader(msg.Credential),
			mail.WithFileContentType(mail.ContentType("image/png"))); err != nil {
			return nil, fmt.Errorf("attach credential: %w", err)
		}
	}
	return out, nil
}

func (m *Mailer) tlsPolicy() mail.TLSPolicy {
	switch strings.ToLower(m.cfg.TLS) {
	case "none":
		return mail.NoTLS
	case "opportunistic":
		return mail.TLSOpportunistic
	default:
		return mail.TLSMandatory
	}
}

// SendRegistrationEmail mails the attendee and the organizer copy.
func (m *Mailer) SendRegistrationEmail(ctx context.Context, msg dto.NotificationMessage) error {
	out, err := m.buildMessage(msg)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(m.tlsPolicy()),
		mail.WithTimeout(m.cfg.Timeout),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		m.log.Warn().Str("utr", msg.PaymentReference).Msgf("failed to send e-mail to %s: %v", strings.Join(m.recipients(msg), ","), err)
		return fmt.Errorf("send email: %w", err)
	}

	m.log.Info().Str("utr", msg.PaymentReference).Msgf("e-mail sent to %s", strings.Join(m.recipients(msg), ","))
	return nil
}
