package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"sort"
	"strings"

	"github.com/chachabrian/devforum-backend/internal/config"
	"github.com/chachabrian/devforum-backend/internal/models"
	"go.uber.org/zap"
)

var otpEmailTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; margin: 0; padding: 0;">
	<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
		<div style="text-align: center; margin-bottom: 30px; background-color: #f9f9f9; padding: 20px;">
			<h2 style="color: #f48024; margin: 0;">{{.Company}}</h2>
		</div>
		<div style="background-color: #f9f9f9; padding: 20px; border-radius: 5px;">
			<h1 style="color: #2c3e50; text-align: center;">{{.Heading}}</h1>
			<p>Hello {{.Name}},</p>
			<p>{{.Intro}}</p>
			<p style="text-align: center; font-size: 32px; letter-spacing: 8px; font-weight: bold;">{{.Code}}</p>
			<p>Do not share this code. It is valid for {{.ValidFor}} only.</p>
		</div>
		<div style="text-align: center; margin-top: 20px; font-size: 12px; color: #666; border-top: 1px solid #eee; padding-top: 20px;">
			<p>This is an automated message, please do not reply to this email.</p>
		</div>
	</div>
</body>
</html>
`))

type otpEmailData struct {
	Company  string
	Heading  string
	Intro    string
	Name     string
	Code     string
	ValidFor string
}

// sendMailFunc matches smtp.SendMail so tests can capture outgoing mail.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPNotifier struct {
	cfg      config.SMTPCfg
	log      *zap.SugaredLogger
	sendMail sendMailFunc
}

func NewSMTPNotifier(cfg config.SMTPCfg, log *zap.SugaredLogger) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, log: log, sendMail: smtp.SendMail}
}

func (n *SMTPNotifier) SendOTP(ctx context.Context, msg OTPMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body, err := n.render(msg)
	if err != nil {
		return err
	}
	return n.send([]string{msg.Email}, subject, body)
}

func (n *SMTPNotifier) render(msg OTPMessage) (string, string, error) {
	data := otpEmailData{
		Company:  n.cfg.Company,
		Name:     msg.Name,
		Code:     msg.Code,
		ValidFor: validFor(msg),
	}
	var subject string
	switch msg.Purpose {
	case models.OTPPurposePasswordReset:
		subject = fmt.Sprintf("Password Reset Code - %s", n.cfg.Company)
		data.Heading = "Password Reset"
		data.Intro = "Use the code below to reset your password."
	default:
		subject = fmt.Sprintf("Verify Your Email - %s", n.cfg.Company)
		data.Heading = "Verify Your Email"
		data.Intro = "Welcome! Use the code below to verify your email address."
	}

	var buf bytes.Buffer
	if err := otpEmailTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render otp email: %w", err)
	}
	return subject, buf.String(), nil
}

func (n *SMTPNotifier) send(to []string, subject, body string) error {
	if n.cfg.From == "" || n.cfg.Host == "" || n.cfg.Port == "" {
		return fmt.Errorf("email configuration not set")
	}

	headers := map[string]string{
		"From":         fmt.Sprintf("%s <%s>", n.cfg.Company, n.cfg.From),
		"To":           strings.Join(to, ","),
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/html; charset=UTF-8",
		"X-Mailer":     "DevForum-Mailer",
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var message strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&message, "%s: %s\r\n", k, headers[k])
	}
	message.WriteString("\r\n")
	message.WriteString(body)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	if err := n.sendMail(n.cfg.Host+":"+n.cfg.Port, auth, n.cfg.From, to, []byte(message.String())); err != nil {
		n.log.Errorw("failed to send email", "to", to, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	n.log.Infow("sent email", "to", to, "subject", subject)
	return nil
}
