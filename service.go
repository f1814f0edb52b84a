package email

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

type ServiceOption func(s *Service)

func SetLogger(logger logrus.FieldLogger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// SetTransportName overrides the transport name reported in EmailError.
func SetTransportName(name string) ServiceOption {
	return func(s *Service) {
		if name != "" {
			s.transportName = name
		}
	}
}

// Service is the entry point applications send email through. The transport
// is fixed at construction; Service is safe for concurrent use as long as the
// transport is.
type Service struct {
	logger        logrus.FieldLogger
	transport     Transport
	transportName string

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func NewService(transport Transport, options ...ServiceOption) *Service {
	if transport == nil {
		panic("email: NewService transport is nil")
	}

	s := &Service{
		logger:        logrus.New(),
		transport:     transport,
		transportName: transportName(transport),
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// TransportName is the name of the transport every message is handed to.
func (s *Service) TransportName() string {
	return s.transportName
}

// Send validates msg and hands it to the transport. Nil slices are treated as
// empty. Every failure is returned as an *EmailError.
func (s *Service) Send(ctx context.Context, msg Message) (Result, error) {
	if s.closed.Load() {
		return Result{}, s.fail(msg, &TransportError{Transport: s.transportName, Op: "send", Err: TransportClosedErr})
	}

	if err := validateMessage(msg); err != nil {
		return Result{}, s.fail(msg, err)
	}

	result, err := s.transport.Send(ctx, msg.clone())
	if err != nil {
		return Result{}, s.fail(msg, err)
	}

	s.logger.
		WithField("transport", s.transportName).
		WithField("id", result.ID).
		WithField("recipients", len(msg.Recipients())).
		Debug("email sent")

	return result, nil
}

// SendTo sends using comma separated address lists, as in
// "alice@example.com, bob@example.com". Every segment is trimmed; the message
// built is identical to the one Send would receive for the same addresses.
func (s *Service) SendTo(ctx context.Context, from, to, subject, body string, opts ...SendOption) (Result, error) {
	if strings.TrimSpace(to) == "" {
		return Result{}, s.fail(Message{From: from}, NewValidationError("to", to, "at least one address is required"))
	}

	msg := Message{
		From:    from,
		To:      SplitAddresses(to),
		Subject: subject,
		Body:    body,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&msg)
		}
	}

	return s.Send(ctx, msg)
}

// Close tears down the transport. Further sends fail.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.transport.Close()
	})

	return s.closeErr
}

func (s *Service) fail(msg Message, err error) error {
	s.logger.
		WithField("transport", s.transportName).
		WithField("from", msg.From).
		WithError(err).
		Error("failed to send email")

	return &EmailError{Transport: s.transportName, Err: err}
}

func validateMessage(msg Message) error {
	if strings.TrimSpace(msg.From) == "" {
		return &ValidationError{Field: "from", Msg: "is required", Err: MissingSenderErr}
	}

	if len(msg.To)+len(msg.Cc)+len(msg.Bcc) == 0 {
		return &ValidationError{Field: "to", Msg: "no recipients", Err: NoRecipientsErr}
	}

	return nil
}

// SendOption adjusts the message built by SendTo.
type SendOption func(msg *Message)

// WithCc adds comma separated Cc addresses.
func WithCc(cc string) SendOption {
	return func(msg *Message) {
		msg.Cc = append(msg.Cc, SplitAddresses(cc)...)
	}
}

// WithBcc adds comma separated Bcc addresses.
func WithBcc(bcc string) SendOption {
	return func(msg *Message) {
		msg.Bcc = append(msg.Bcc, SplitAddresses(bcc)...)
	}
}

// WithAttachments adds comma separated attachment paths.
func WithAttachments(paths string) SendOption {
	return func(msg *Message) {
		msg.Attachments = append(msg.Attachments, SplitAddresses(paths)...)
	}
}

// AsHTML marks the body as HTML.
func AsHTML() SendOption {
	return func(msg *Message) {
		msg.BodyIsHTML = true
	}
}

// SplitAddresses splits a comma separated list and trims every segment.
// Empty segments are kept so transports can reject them; an empty or blank
// input yields an empty list.
func SplitAddresses(list string) []string {
	if strings.TrimSpace(list) == "" {
		return []string{}
	}

	parts := strings.Split(list, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}

	return parts
}

type namedTransport interface {
	Name() string
}

func transportName(t Transport) string {
	if named, ok := t.(namedTransport); ok {
		return named.Name()
	}

	name := fmt.Sprintf("%T", t)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}

	return strings.TrimPrefix(name, "*")
}
