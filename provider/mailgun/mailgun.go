// Package mailgun delivers email through the Mailgun HTTP API.
//
// Importing the package registers the "Mailgun" strategy.
package mailgun

import (
	"context"
	"strings"

	"github.com/mailgun/mailgun-go/v3"
	"github.com/sirupsen/logrus"

	"github.com/interactive-solutions/go-email"
	"github.com/interactive-solutions/go-email/config"
	"github.com/interactive-solutions/go-email/internal/mimemsg"
)

const Strategy = "Mailgun"

func init() {
	email.RegisterStrategy(Strategy, Register)
}

// Options are bound from the "mailgun" key of the email section. APIBase must
// include the version path, e.g. https://api.eu.mailgun.net/v3.
type Options struct {
	Domain  string `mapstructure:"domain" validate:"required,hostname"`
	APIKey  string `mapstructure:"apiKey" validate:"required"`
	APIBase string `mapstructure:"apiBase" validate:"omitempty,url"`
	ReplyTo string `mapstructure:"replyTo" validate:"omitempty,email"`
}

type MailgunOption func(t *mailgunTransport)

func SetReplyTo(replyTo string) MailgunOption {
	return func(t *mailgunTransport) {
		t.replyTo = replyTo
	}
}

func SetLogger(logger logrus.FieldLogger) MailgunOption {
	return func(t *mailgunTransport) {
		t.logger = logger
	}
}

type mailgunTransport struct {
	mg     mailgun.Mailgun
	logger logrus.FieldLogger

	replyTo string
}

func NewMailgunTransport(mailgunClient mailgun.Mailgun, options ...MailgunOption) email.Transport {
	t := &mailgunTransport{
		mg:     mailgunClient,
		logger: logrus.New(),
	}

	for _, option := range options {
		option(t)
	}

	return t
}

func (t *mailgunTransport) Name() string { return Strategy }

func (t *mailgunTransport) Send(ctx context.Context, msg email.Message) (email.Result, error) {
	if err := mimemsg.Validate(msg); err != nil {
		return email.Result{}, err
	}

	// The messages endpoint rejects requests without a to field or a body.
	if len(msg.To) == 0 {
		return email.Result{}, &email.ValidationError{Field: "to", Msg: "mailgun requires a To address", Err: email.NoRecipientsErr}
	}

	if msg.Body == "" {
		return email.Result{}, email.NewValidationError("body", "", "mailgun requires a body")
	}

	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, strings.TrimSpace(addr))
	}

	var m *mailgun.Message
	if msg.BodyIsHTML {
		m = t.mg.NewMessage(strings.TrimSpace(msg.From), msg.Subject, "", to...)
		m.SetHtml(msg.Body)
	} else {
		m = t.mg.NewMessage(strings.TrimSpace(msg.From), msg.Subject, msg.Body, to...)
	}

	for _, addr := range msg.Cc {
		m.AddCC(strings.TrimSpace(addr))
	}

	for _, addr := range msg.Bcc {
		m.AddBCC(strings.TrimSpace(addr))
	}

	for _, path := range msg.Attachments {
		m.AddAttachment(path)
	}

	if t.replyTo != "" {
		m.SetReplyTo(t.replyTo)
	}

	m.AddHeader("User-Agent", email.UserAgent)

	_, id, err := t.mg.Send(ctx, m)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}

		return email.Result{}, email.NewTransportError(Strategy, "send", err)
	}

	id = strings.Trim(id, "<>")
	if id == "" {
		id = email.NewMessageID()
	}

	t.logger.
		WithField("id", id).
		WithField("domain", t.mg.Domain()).
		Debug("mailgun message queued")

	return email.Result{ID: id}, nil
}

// Close is a no-op; the mailgun client holds no per-transport resources.
func (t *mailgunTransport) Close() error {
	return nil
}

// Register is the "Mailgun" strategy registrar.
func Register(c *email.Container, section config.Section) error {
	var opts Options
	if err := email.BindOptions("mailgun", section.Sub("mailgun"), &opts); err != nil {
		return err
	}

	return RegisterOptions(c, opts)
}

// RegisterOptions registers the transport with options built in code.
func RegisterOptions(c *email.Container, opts Options) error {
	if err := email.ValidateOptions("mailgun", opts); err != nil {
		return err
	}

	c.RegisterTransport(Strategy, func() (email.Transport, error) {
		mg := mailgun.NewMailgun(opts.Domain, opts.APIKey)
		if opts.APIBase != "" {
			mg.SetAPIBase(opts.APIBase)
		}

		return NewMailgunTransport(mg,
			SetReplyTo(opts.ReplyTo),
			SetLogger(c.Logger().WithField("transport", Strategy)),
		), nil
	})

	return nil
}
