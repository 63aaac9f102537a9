// Package mailer delivers magic-link login emails. Delivery is a collaborator
// of the auth core, not part of it: send failures are logged and counted but
// never fail the login request that triggered them.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	gomail "github.com/go-mail/mail"
	"go.uber.org/zap"

	"confreg.org/internal/obs"
)

// Sender delivers a login link to one recipient.
type Sender interface {
	SendLoginLink(ctx context.Context, to, displayName, url string) error
}

// SMTPConfig holds the dialer settings for a production sender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPSender sends multipart text+HTML mail over SMTP.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
	name   string
}

var _ Sender = (*SMTPSender)(nil)

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		name:   cfg.FromName,
	}
}

func (s *SMTPSender) SendLoginLink(ctx context.Context, to, displayName, url string) error {
	text, html, err := RenderLoginLink(displayName, url)
	if err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.name)
	m.SetAddressHeader("To", to, displayName)
	m.SetHeader("Subject", loginSubject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", html)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send login link: %w", err)
	}
	return nil
}

// LogSender is the development fallback when SMTP is not configured: it logs
// the link instead of delivering it.
type LogSender struct{}

var _ Sender = LogSender{}

func (LogSender) SendLoginLink(ctx context.Context, to, displayName, url string) error {
	obs.Named("mailer").Info("login link (smtp disabled)",
		zap.String("to", to),
		zap.String("url", url),
	)
	return nil
}

const loginSubject = "Your sign-in link"

var textTmpl = texttemplate.Must(texttemplate.New("login_text").Parse(
	`Hello {{.Name}},

Use the link below to sign in. It is valid for 15 minutes and works once.

{{.URL}}

If you did not request this, you can ignore this email.
`))

var htmlTmpl = htmltemplate.Must(htmltemplate.New("login_html").Parse(
	`<p>Hello {{.Name}},</p>
<p>Use the link below to sign in. It is valid for 15 minutes and works once.</p>
<p><a href="{{.URL}}">Sign in</a></p>
<p>If you did not request this, you can ignore this email.</p>
`))

// RenderLoginLink renders both bodies of the login email.
func RenderLoginLink(displayName, url string) (text, html string, err error) {
	data := struct {
		Name string
		URL  string
	}{Name: displayName, URL: url}
	if data.Name == "" {
		data.Name = "there"
	}
	var tb, hb bytes.Buffer
	if err := textTmpl.Execute(&tb, data); err != nil {
		return "", "", err
	}
	if err := htmlTmpl.Execute(&hb, data); err != nil {
		return "", "", err
	}
	return tb.String(), hb.String(), nil
}
