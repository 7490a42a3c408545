// Package notify mails the exported artifact to the downstream consumer.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	netmail "net/mail"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/mail.v2"

	"datasender/cli/internal/errors"
)

// ImplicitTLSPort is the SMTPS port; any other port negotiates STARTTLS.
const ImplicitTLSPort = 465

// DefaultTimeout bounds every SMTP round trip.
const DefaultTimeout = 30 * time.Second

// Settings describes the relay and the message envelope.
type Settings struct {
	Server   string
	Port     int
	User     string
	Password string
	From     string
	To       []string
	// Subject is sent as is; the company suffix is already applied.
	Subject string
}

// Notifier sends one message per artifact.
type Notifier struct {
	Settings Settings
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Compose builds the message: configured subject, empty text body and the
// artifact attached under its base name.
func (n *Notifier) Compose(artifactPath string) (*mail.Message, error) {
	if _, err := netmail.ParseAddress(n.Settings.From); err != nil {
		return nil, errors.Wrapf(errors.Config, err, "invalid sender %q", n.Settings.From)
	}
	if len(n.Settings.To) == 0 {
		return nil, errors.New(errors.Config, "no recipients")
	}
	for _, to := range n.Settings.To {
		if _, err := netmail.ParseAddress(to); err != nil {
			return nil, errors.Wrapf(errors.Config, err, "invalid recipient %q", to)
		}
	}
	if _, err := os.Stat(artifactPath); err != nil {
		return nil, errors.Wrap(errors.Export, "cannot attach the artifact", err)
	}

	m := mail.NewMessage()
	m.SetHeader("From", n.Settings.From)
	m.SetHeader("To", n.Settings.To...)
	m.SetHeader("Subject", n.Settings.Subject)
	m.SetDateHeader("Date", time.Now())
	m.SetBody("text/plain", "")
	m.Attach(artifactPath, mail.Rename(filepath.Base(artifactPath)))
	return m, nil
}

// Send composes and delivers the message over an authenticated, encrypted
// session. Delivery failures are connectivity errors.
func (n *Notifier) Send(ctx context.Context, artifactPath string) error {
	m, err := n.Compose(artifactPath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := n.dialer().DialAndSend(m); err != nil {
		return errors.Wrap(errors.Connectivity, fmt.Sprintf("cannot send mail via %s:%d", n.Settings.Server, n.Settings.Port), err)
	}

	if n.Logger != nil {
		n.Logger.Debug("notification sent", zap.Strings("to", n.Settings.To), zap.String("attachment", filepath.Base(artifactPath)))
	}
	return nil
}

func (n *Notifier) dialer() *mail.Dialer {
	d := mail.NewDialer(n.Settings.Server, n.Settings.Port, n.Settings.User, n.Settings.Password)
	d.Timeout = n.Timeout
	if d.Timeout == 0 {
		d.Timeout = DefaultTimeout
	}
	d.SSL = n.Settings.Port == ImplicitTLSPort
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{ServerName: n.Settings.Server, MinVersion: tls.VersionTLS12}
	return d
}
