package utils

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"

	"stayflow/config"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// ErrorKind classifies a transport failure. Transient failures are retried
// with backoff up to the attempt cap; permanent failures are terminal.
type ErrorKind string

const (
	ErrorKindTransient ErrorKind = "transient"
	ErrorKindPermanent ErrorKind = "permanent"
)

// SendError is a classified mail transport failure.
type SendError struct {
	Kind ErrorKind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s send failure: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// ClassifyError extracts the failure kind from a transport error. Anything
// the transport cannot classify defaults to transient - the retry cap bounds
// it, whereas treating unknowns as permanent would silently drop sends.
func ClassifyError(err error) ErrorKind {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Kind
	}

	var smtpErr *textproto.Error
	if errors.As(err, &smtpErr) {
		// 5xx replies are hard rejections (bad recipient, policy); 4xx are
		// temporary conditions (rate limit, greylisting).
		if smtpErr.Code >= 500 {
			return ErrorKindPermanent
		}
		return ErrorKindTransient
	}

	return ErrorKindTransient
}

// OutboundEmail is a fully rendered message ready for the transport.
type OutboundEmail struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
}

// SendReceipt reports a successful transport call.
type SendReceipt struct {
	ProviderMessageID string
}

// MailTransport is the external mail service the executor depends on.
// Implementations classify failures by returning *SendError.
type MailTransport interface {
	Send(ctx context.Context, email OutboundEmail) (SendReceipt, error)
}

// SMTPTransport sends through an SMTP relay using gomail.
type SMTPTransport struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

func NewSMTPTransport(cfg config.Config) *SMTPTransport {
	return &SMTPTransport{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUsername,
		Password:  cfg.SMTPPassword,
		FromEmail: cfg.FromEmail,
		FromName:  cfg.FromName,
	}
}

// Send delivers one message. The dial-and-send runs in its own goroutine so
// a relay that never answers cannot outlive the caller's deadline.
func (t *SMTPTransport) Send(ctx context.Context, email OutboundEmail) (SendReceipt, error) {
	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", t.FromName, t.FromEmail))
	if email.ToName != "" {
		m.SetAddressHeader("To", email.To, email.ToName)
	} else {
		m.SetHeader("To", email.To)
	}
	m.SetHeader("Subject", email.Subject)

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), t.Host)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/html", email.HTMLBody)

	d := gomail.NewDialer(t.Host, t.Port, t.Username, t.Password)

	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return SendReceipt{}, &SendError{Kind: ErrorKindTransient, Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			return SendReceipt{}, &SendError{Kind: ClassifyError(err), Err: err}
		}
	}

	return SendReceipt{ProviderMessageID: messageID}, nil
}
