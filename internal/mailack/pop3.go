package mailack

import (
	"context"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/knadh/go-pop3"
)

// DefaultDialTimeout bounds connection setup when the context has no deadline.
const DefaultDialTimeout = 30 * time.Second

// POP3Dialer opens POP3 sessions over implicit TLS.
type POP3Dialer struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Dial connects and authenticates.
func (d POP3Dialer) Dial(ctx context.Context) (Mailbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := DefaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	client := pop3.New(pop3.Opt{
		Host:        d.Host,
		Port:        d.Port,
		TLSEnabled:  true,
		DialTimeout: timeout,
	})
	conn, err := client.NewConn()
	if err != nil {
		return nil, err
	}
	if err := conn.Auth(d.User, d.Password); err != nil {
		_ = conn.Quit()
		return nil, err
	}
	return &pop3Mailbox{conn: conn}, nil
}

type pop3Mailbox struct {
	conn *pop3.Conn
}

func (m *pop3Mailbox) Count() (int, error) {
	count, _, err := m.conn.Stat()
	return count, err
}

func (m *pop3Mailbox) Message(n int) (*Message, error) {
	raw, err := m.conn.RetrRaw(n)
	if err != nil {
		return nil, err
	}
	return parseMessage(raw)
}

func (m *pop3Mailbox) Delete(n int) error { return m.conn.Dele(n) }

// Close sends QUIT, which commits pending deletions.
func (m *pop3Mailbox) Close() error { return m.conn.Quit() }

// parseMessage decodes the subject and the first text/plain part of a raw
// RFC 5322 message.
func parseMessage(r io.Reader) (*Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, err
	}
	defer mr.Close()

	subject, err := mr.Header.Subject()
	if err != nil {
		// Undecodable encoded-words: fall back to the raw header value.
		subject = mr.Header.Get("Subject")
	}
	msg := &Message{Subject: subject}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, err
		}
		if p == nil {
			break
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		if !isPlainText(h) {
			continue
		}
		body, err := io.ReadAll(p.Body)
		if err != nil {
			return nil, err
		}
		msg.Body, msg.HasText = string(body), true
		break
	}
	return msg, nil
}

func isPlainText(h *mail.InlineHeader) bool {
	ct := h.Get("Content-Type")
	if ct == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	return err == nil && strings.EqualFold(mediaType, "text/plain")
}
