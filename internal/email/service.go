// Package email sends workflow notifications via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
	"unicode"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service
func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends an HTML email with a plain text fallback part.
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody, textBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	if len(to) == 0 {
		return nil
	}
	for _, addr := range to {
		if strings.ContainsAny(addr, "\r\n") {
			return fmt.Errorf("invalid recipient %q", addr)
		}
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", headerValue(s.config.FromName), s.config.From)
	}

	boundary := "boundary-dokflow"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", headerValue(subject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.send(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// FinishNotice tells approvers that a document reached its final state.
type FinishNotice struct {
	Kind        string
	Title       string
	CompanyName string
	NextStep    string
	Recipients  []Recipient
}

type Recipient struct {
	Name  string
	Email string
}

type finishData struct {
	AppName string
	FinishNotice
}

// SendFinishNotice mails every recipient with a valid address. Recipients
// without one are skipped.
func (s *Service) SendFinishNotice(notice FinishNotice) error {
	to := make([]string, 0, len(notice.Recipients))
	for _, r := range notice.Recipients {
		addr := strings.TrimSpace(r.Email)
		if addr == "" {
			continue
		}
		if _, err := mail.ParseAddress(addr); err != nil || strings.ContainsAny(addr, "<>") {
			continue
		}
		to = append(to, addr)
	}
	if len(to) == 0 {
		return nil
	}

	html, err := renderTemplate(finishEmailTemplate, finishData{AppName: "Dokflow", FinishNotice: notice})
	if err != nil {
		return fmt.Errorf("render finish template: %w", err)
	}
	subject := fmt.Sprintf("[%s] %s selesai: %s", strings.ToUpper(notice.Kind), notice.CompanyName, notice.Title)
	text := fmt.Sprintf("%s \"%s\" for %s has been finished. Next step: %s.",
		strings.ToUpper(notice.Kind), notice.Title, notice.CompanyName, notice.NextStep)

	return s.SendHTMLEmail(to, subject, html, text)
}

// headerValue folds control characters into spaces and Q-encodes non-ASCII
// text, so user input can never start a new header line.
func headerValue(v string) string {
	v = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, v)
	return mime.QEncoding.Encode("UTF-8", strings.Join(strings.Fields(v), " "))
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

const finishEmailTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
    .container { max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { border-bottom: 2px solid #1d4ed8; padding-bottom: 8px; }
    .footer { margin-top: 30px; font-size: 12px; color: #666; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header"><h2>{{.AppName}}</h2></div>
    <p>Dokumen <strong>{{.Kind}}</strong> "{{.Title}}" untuk <strong>{{.CompanyName}}</strong> telah selesai.</p>
    <p>Tahap berikutnya: <strong>{{.NextStep}}</strong></p>
    <p>Penerima:</p>
    <ul>{{range .Recipients}}<li>{{.Name}}</li>{{end}}</ul>
    <div class="footer">Email ini dikirim otomatis oleh {{.AppName}}.</div>
  </div>
</body>
</html>`
