package mail

import (
	"strings"
	"testing"

	"prepkitty/internal/config"
)

func TestVerificationLink(t *testing.T) {
	got := VerificationLink("https://api.prepkitty.dev/", "abc 123")
	want := "https://api.prepkitty.dev/v1/auth/verify-email?token=abc+123"
	if got != want {
		t.Fatalf("link = %q, want %q", got, want)
	}
}

func TestRenderVerificationBody(t *testing.T) {
	body, err := RenderVerificationBody("Jane", "https://example.com/verify?token=t")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"Welcome to PrepKitty, Jane!", "Please click the link below to verify your email address:", `href="https://example.com/verify?token=t"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestBuildMessage(t *testing.T) {
	sender := NewSMTPSender(config.SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "noreply@example.com"}, "http://localhost:8080")
	msg, err := sender.buildMessage("jane@example.com", "", "tok")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if subject := msg.GetGenHeader("Subject"); len(subject) != 1 || subject[0] != verifySubject {
		t.Fatalf("subject = %v", subject)
	}
	if to := msg.GetTo(); len(to) != 1 || to[0].Address != "jane@example.com" {
		t.Fatalf("to = %v", to)
	}

	if _, err := sender.buildMessage("not-an-address", "", "tok"); err == nil {
		t.Fatal("expected invalid recipient to fail")
	}
}
