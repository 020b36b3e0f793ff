package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// DefaultSendTimeout bounds a single gateway call.
const DefaultSendTimeout = 5 * time.Second

// MailerConfig carries the values rendered into every account email.
type MailerConfig struct {
	AppName      string
	SupportEmail string
	DashboardURL string
	// ResetURLBase is the reset form URL; the token is appended as ?token=.
	ResetURLBase string
	Timeout      time.Duration
}

// Mailer renders and sends the account emails through a Gateway.
type Mailer struct {
	gw    Gateway
	cfg   MailerConfig
	tmpls templates
}

// NewMailer parses the embedded templates and returns a Mailer sending through gw.
func NewMailer(gw Gateway, cfg MailerConfig) (*Mailer, error) {
	if gw == nil {
		return nil, errors.New("notify: gateway is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSendTimeout
	}
	if cfg.AppName == "" {
		cfg.AppName = "Naija Nutri Hub"
	}
	tmpls, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	return &Mailer{gw: gw, cfg: cfg, tmpls: tmpls}, nil
}

// SendOTP emails a verification code valid for ttl.
func (m *Mailer) SendOTP(ctx context.Context, to, userName, code string, ttl time.Duration) error {
	minutes := int(ttl.Minutes())
	return m.send(ctx, to, tmplOTP,
		"Your Verification Code - "+m.cfg.AppName,
		fmt.Sprintf("Your OTP code is: %s. It expires in %d minutes.", code, minutes),
		templateData{UserName: userName, Code: code, ExpiryMinutes: minutes})
}

// SendPasswordReset emails a single-use reset link carrying token.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, userName, token string, ttl time.Duration) error {
	link, err := m.resetURL(token)
	if err != nil {
		return err
	}
	minutes := int(ttl.Minutes())
	return m.send(ctx, to, tmplReset,
		"Reset your password - "+m.cfg.AppName,
		fmt.Sprintf("Reset your password using this link: %s. It expires in %d minutes.", link, minutes),
		templateData{UserName: userName, ResetURL: link, ExpiryMinutes: minutes})
}

// SendWelcome emails the onboarding message sent after verification.
func (m *Mailer) SendWelcome(ctx context.Context, to, userName string) error {
	return m.send(ctx, to, tmplWelcome,
		"Welcome to "+m.cfg.AppName+"!",
		"Welcome to "+m.cfg.AppName+"!",
		templateData{UserName: userName})
}

// SendPasswordChanged notifies the user that their password was changed.
func (m *Mailer) SendPasswordChanged(ctx context.Context, to, userName string) error {
	return m.send(ctx, to, tmplPasswordChanged,
		"Your password was changed - "+m.cfg.AppName,
		"The password for your "+m.cfg.AppName+" account was just changed. If this was not you, contact support.",
		templateData{UserName: userName})
}

func (m *Mailer) send(ctx context.Context, to, tmpl, subject, text string, data templateData) error {
	data.AppName = m.cfg.AppName
	data.SupportEmail = m.cfg.SupportEmail
	data.DashboardURL = m.cfg.DashboardURL
	if data.UserName == "" {
		data.UserName = "User"
	}
	html, err := m.tmpls.render(tmpl, data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	err = m.gw.Send(ctx, Message{To: to, Subject: subject, Text: text, HTML: html})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDeliveryFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
}

func (m *Mailer) resetURL(token string) (string, error) {
	u, err := url.Parse(m.cfg.ResetURLBase)
	if err != nil {
		return "", fmt.Errorf("%w: reset url: %w", ErrDeliveryFailure, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
