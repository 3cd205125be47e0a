package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{name: "empty config", config: Config{}, expected: false},
		{name: "missing host", config: Config{Port: "587", From: "test@example.com"}, expected: false},
		{name: "missing port", config: Config{Host: "smtp.example.com", From: "test@example.com"}, expected: false},
		{name: "missing from", config: Config{Host: "smtp.example.com", Port: "587"}, expected: false},
		{name: "fully configured", config: Config{Host: "smtp.example.com", Port: "587", From: "test@example.com"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewService(tt.config).IsConfigured(); got != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.expected)
			}
		})
	}
}

type capturedMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newCapturingService(t *testing.T) (*Service, *capturedMail) {
	t.Helper()
	svc := NewService(Config{Host: "smtp.example.com", Port: "587", From: "noreply@example.com", FromName: "SectorBoard"})
	captured := &capturedMail{}
	svc.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		captured.addr, captured.from, captured.to, captured.msg = addr, from, to, string(msg)
		return nil
	}
	return svc, captured
}

func TestSendInvitationEmail(t *testing.T) {
	svc, captured := newCapturingService(t)

	err := svc.SendInvitationEmail("new@example.com", InvitationData{
		InviterName: "Maria",
		SectorName:  "Logistics",
		Role:        "collaborator",
		InviteURL:   "https://board.example.com/signup?invite=abc",
		ExpiresAt:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("SendInvitationEmail() error = %v", err)
	}

	if captured.addr != "smtp.example.com:587" {
		t.Errorf("unexpected server %q", captured.addr)
	}
	if len(captured.to) != 1 || captured.to[0] != "new@example.com" {
		t.Errorf("unexpected recipients %v", captured.to)
	}
	for _, want := range []string{
		"From: SectorBoard <noreply@example.com>",
		"Subject: You're invited to SectorBoard",
		"https://board.example.com/signup?invite=abc",
		"2026-03-01",
		"multipart/alternative",
	} {
		if !strings.Contains(captured.msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendReviewEmailVariants(t *testing.T) {
	svc, captured := newCapturingService(t)

	if err := svc.SendReviewEmail("a@example.com", ReviewData{UserName: "Ana", Approved: true, LoginURL: "https://board.example.com"}); err != nil {
		t.Fatalf("approved: %v", err)
	}
	if !strings.Contains(captured.msg, "account is ready") {
		t.Errorf("approved subject missing: %s", captured.msg)
	}

	if err := svc.SendReviewEmail("a@example.com", ReviewData{UserName: "Ana"}); err != nil {
		t.Fatalf("rejected: %v", err)
	}
	if !strings.Contains(captured.msg, "declined") {
		t.Errorf("declined wording missing: %s", captured.msg)
	}
}

func TestSendFailsWhenNotConfigured(t *testing.T) {
	err := NewService(Config{}).SendInvitationEmail("x@example.com", InvitationData{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
