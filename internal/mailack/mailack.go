// Package mailack consumes completion acknowledgments from a mailbox.
//
// The downstream consumer acknowledges a picked-up artifact by mailing its
// file name in the plain-text body of a message whose subject contains an
// agreed substring. Each run consumes at most one acknowledgment, the newest.
package mailack

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"datasender/cli/internal/errors"
)

// Message is the part of a mailbox message the acknowledger looks at.
type Message struct {
	Subject string
	// Body is the first text/plain part. HasText is false when there is none.
	Body    string
	HasText bool
}

// Mailbox is an open mailbox session. Messages are numbered 1..Count,
// oldest first.
type Mailbox interface {
	Count() (int, error)
	Message(n int) (*Message, error)
	// Delete marks message n for deletion; it takes effect on Close.
	Delete(n int) error
	Close() error
}

// Dialer opens an authenticated mailbox session.
type Dialer interface {
	Dial(ctx context.Context) (Mailbox, error)
}

// Acknowledger finds and consumes the newest acknowledgment.
type Acknowledger struct {
	Dialer  Dialer
	Subject string
	Logger  *zap.Logger
}

// FindAndConsume scans the mailbox newest to oldest. For the first message
// whose subject contains a.Subject it returns the trimmed body and deletes
// the message. found is false when no message matches. Older matching
// messages are left for later runs.
func (a *Acknowledger) FindAndConsume(ctx context.Context) (name string, found bool, err error) {
	log := a.Logger
	if log == nil {
		log = zap.NewNop()
	}

	mb, err := a.Dialer.Dial(ctx)
	if err != nil {
		return "", false, errors.Wrap(errors.Connectivity, "cannot open the mailbox", err)
	}
	closed := false
	defer func() {
		if !closed {
			if cerr := mb.Close(); cerr != nil {
				log.Warn("closing mailbox failed", zap.Error(cerr))
			}
		}
	}()

	count, err := mb.Count()
	if err != nil {
		return "", false, errors.Wrap(errors.Connectivity, "cannot list the mailbox", err)
	}

	for n := count; n >= 1; n-- {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		msg, err := mb.Message(n)
		if err != nil {
			return "", false, errors.Wrapf(errors.Connectivity, err, "cannot retrieve message %d", n)
		}
		if !strings.Contains(msg.Subject, a.Subject) {
			continue
		}
		if !msg.HasText {
			log.Warn("acknowledgment has no plain-text body, left in mailbox", zap.Int("message", n), zap.String("subject", msg.Subject))
			continue
		}

		log.Info("Updated notification mail received.")
		name = strings.TrimSpace(msg.Body)
		if err := mb.Delete(n); err != nil {
			return "", false, errors.Wrapf(errors.Connectivity, err, "cannot delete message %d", n)
		}
		closed = true
		if err := mb.Close(); err != nil {
			return "", false, errors.Wrap(errors.Connectivity, "cannot commit message deletion", err)
		}
		log.Info("Updated notification mail deleted.")
		return name, true, nil
	}
	return "", false, nil
}
