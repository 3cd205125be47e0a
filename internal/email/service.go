// Package email sends transactional mail over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("email not configured")

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type Service struct {
	config   Config
	server   string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewService(config Config) *Service {
	return &Service{
		config:   config,
		server:   config.Host + ":" + config.Port,
		auth:     smtp.PlainAuth("", config.Username, config.Password, config.Host),
		sendMail: smtp.SendMail,
	}
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart message with a plain-text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-sectorboard"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", textBody)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.sendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

type InvitationData struct {
	AppName     string
	InviterName string
	SectorName  string
	Role        string
	InviteURL   string
	ExpiresAt   time.Time
}

func (s *Service) SendInvitationEmail(to string, data InvitationData) error {
	if data.AppName == "" {
		data.AppName = "SectorBoard"
	}
	html, err := render(invitationTemplate, data)
	if err != nil {
		return fmt.Errorf("render invitation template: %w", err)
	}
	text := fmt.Sprintf("%s invited you to join %s on %s as %s.\nAccept before %s: %s",
		data.InviterName, data.SectorName, data.AppName, data.Role, data.ExpiresAt.Format("2006-01-02"), data.InviteURL)
	return s.SendHTMLEmail([]string{to}, fmt.Sprintf("You're invited to %s", data.AppName), text, html)
}

type ReviewData struct {
	AppName  string
	UserName string
	Approved bool
	LoginURL string
}

// SendReviewEmail tells a registrant whether their access was approved.
func (s *Service) SendReviewEmail(to string, data ReviewData) error {
	if data.AppName == "" {
		data.AppName = "SectorBoard"
	}
	html, err := render(reviewTemplate, data)
	if err != nil {
		return fmt.Errorf("render review template: %w", err)
	}
	subject := fmt.Sprintf("Your %s access request was declined", data.AppName)
	text := "Your access request was declined by a manager."
	if data.Approved {
		subject = fmt.Sprintf("Your %s account is ready", data.AppName)
		text = "Your access request was approved. Sign in at " + data.LoginURL
	}
	return s.SendHTMLEmail([]string{to}, subject, text, html)
}

var (
	invitationTemplate = template.Must(template.New("invitation").Parse(invitationHTML))
	reviewTemplate     = template.Must(template.New("review").Parse(reviewHTML))
)

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const invitationHTML = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>You're invited to {{.AppName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #1f7a4d; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <h2>{{.InviterName}} invited you to {{.SectorName}}</h2>
    <p>You will join {{.AppName}} as <strong>{{.Role}}</strong> once your registration is approved.</p>
    <p><a href="{{.InviteURL}}" class="button">Accept invitation</a></p>
    <p>This invitation expires on {{.ExpiresAt.Format "2006-01-02"}}.</p>
    <div class="footer">
        <p>If you were not expecting this invitation, you can ignore this email.</p>
    </div>
</body>
</html>`

const reviewHTML = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.AppName}}</title>
</head>
<body style="font-family: sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2>Hi {{.UserName}},</h2>
    {{if .Approved}}
    <p>A manager approved your access. You can now <a href="{{.LoginURL}}">sign in</a>.</p>
    {{else}}
    <p>A manager declined your access request. Contact your sector manager if you think this is a mistake.</p>
    {{end}}
</body>
</html>`
