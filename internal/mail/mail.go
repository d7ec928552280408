// Package mail 通过 SMTP 发送验证邮件。
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	gomail "github.com/wneessen/go-mail"

	"prepkitty/internal/config"
)

const (
	senderName        = "PrepKitty"
	verifySubject     = "Verify your email address"
	verifyPathAndLink = "/v1/auth/verify-email?token="
)

// Sender 发送一封验证邮件。
type Sender interface {
	SendVerification(ctx context.Context, to, name, token string) error
}

var verifyTemplate = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h1>Welcome to PrepKitty{{if .Name}}, {{.Name}}{{end}}!</h1>
  <p>Please click the link below to verify your email address:</p>
  <p><a href="{{.Link}}">{{.Link}}</a></p>
  <p>This link expires in 24 hours.</p>
</body>
</html>
`))

// VerificationLink 拼出邮件中的验证链接。
func VerificationLink(publicBaseURL, token string) string {
	return strings.TrimRight(publicBaseURL, "/") + verifyPathAndLink + url.QueryEscape(token)
}

// RenderVerificationBody 渲染验证邮件 HTML 正文。
func RenderVerificationBody(name, link string) (string, error) {
	var buf bytes.Buffer
	if err := verifyTemplate.Execute(&buf, struct{ Name, Link string }{Name: name, Link: link}); err != nil {
		return "", fmt.Errorf("execute verification template: %w", err)
	}
	return buf.String(), nil
}

// SMTPSender 基于 go-mail 的 SMTP 实现。
type SMTPSender struct {
	cfg           config.SMTPConfig
	publicBaseURL string
}

// NewSMTPSender 创建 SMTP 发送器。
func NewSMTPSender(cfg config.SMTPConfig, publicBaseURL string) *SMTPSender {
	return &SMTPSender{cfg: cfg, publicBaseURL: publicBaseURL}
}

func (s *SMTPSender) buildMessage(to, name, token string) (*gomail.Msg, error) {
	body, err := RenderVerificationBody(name, VerificationLink(s.publicBaseURL, token))
	if err != nil {
		return nil, err
	}

	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(senderName, from); err != nil {
		return nil, fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(verifySubject)
	msg.SetBodyString(gomail.TypeTextHTML, body)
	return msg, nil
}

// SendVerification 发送验证邮件。
func (s *SMTPSender) SendVerification(ctx context.Context, to, name, token string) error {
	msg, err := s.buildMessage(to, name, token)
	if err != nil {
		return err
	}

	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSMandatory),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send verification mail to %s: %w", to, err)
	}
	return nil
}
