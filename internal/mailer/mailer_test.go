package mailer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"regdesk/internal/dto"
)

func newTestMailer(organizer string) *Mailer {
	log := zerolog.Nop()
	return New(Config{
		Host:      "localhost",
		From:      "desk@example.com",
		Organizer: organizer,
		EventName: "TechFest",
	}, &log)
}

func render(t *testing.T, m *Mailer, msg dto.NotificationMessage) string {
	t.Helper()
	out, err := m.buildMessage(msg)
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
	var buf bytes.Buffer
	if _, err := out.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	return buf.String()
}

func TestBuildMessageWithCredential(t *testing.T) {
	raw := render(t, newTestMailer("org@example.com"), dto.NotificationMessage{
		PaymentReference: "123456789012",
		Name:             "Asha",
		Email:            "asha@example.com",
		Events:           []string{"Dance", "Quiz"},
		Amount:           "250",
		Credential:       []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a},
	})

	for _, want := range []string{
		"asha@example.com",
		"org@example.com",
		"Subject: Registration confirmed: TechFest",
		"credential-123456789012.png",
		"image/png",
		"Dance, Quiz",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestBuildMessageOrganizerOnly(t *testing.T) {
	raw := render(t, newTestMailer("org@example.com"), dto.NotificationMessage{
		PaymentReference: "123456789012",
		Name:             "Asha",
		Events:           []string{"Dance"},
		Amount:           "100",
	})
	if !strings.Contains(raw, "org@example.com") {
		t.Fatal("organizer must receive the copy")
	}
	if strings.Contains(raw, ".png") {
		t.Fatal("no attachment expected without a credential")
	}
}

func TestNoRecipient(t *testing.T) {
	m := newTestMailer("")
	if _, err := m.buildMessage(dto.NotificationMessage{PaymentReference: "123456789012"}); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("err = %v, want ErrNoRecipient", err)
	}
	if err := m.SendRegistrationEmail(context.Background(), dto.NotificationMessage{}); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("send err = %v, want ErrNoRecipient", err)
	}
}

func TestRecipientsDeduplicateOrganizer(t *testing.T) {
	m := newTestMailer("asha@example.com")
	got := m.recipients(dto.NotificationMessage{Email: "asha@example.com"})
	if len(got) != 1 {
		t.Fatalf("recipients = %v", got)
	}
}
