// Package ses delivers email through Amazon SES using raw MIME messages.
//
// Importing the package registers the "Ses" strategy.
package ses

import (
	"bytes"
	"context"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/interactive-solutions/go-email"
	"github.com/interactive-solutions/go-email/config"
	"github.com/interactive-solutions/go-email/internal/mimemsg"
)

const Strategy = "Ses"

func init() {
	email.RegisterStrategy(Strategy, Register)
}

// Options are bound from the "ses" key of the email section. Without static
// credentials the default AWS credential chain is used.
type Options struct {
	Region           string `mapstructure:"region" validate:"required"`
	Endpoint         string `mapstructure:"endpoint" validate:"omitempty,url"`
	AccessKeyID      string `mapstructure:"accessKeyId" validate:"required_with=SecretAccessKey"`
	SecretAccessKey  string `mapstructure:"secretAccessKey" validate:"required_with=AccessKeyID"`
	ConfigurationSet string `mapstructure:"configurationSet"`
}

// NewSession builds the AWS session described by opts.
func NewSession(opts Options) (*session.Session, error) {
	cfg := &aws.Config{Region: aws.String(opts.Region)}

	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
	}

	if opts.AccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKeyID, opts.SecretAccessKey, "")
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create aws session")
	}

	return sess, nil
}

type SesOption func(t *Transport)

func SetLogger(logger logrus.FieldLogger) SesOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

func SetConfigurationSet(name string) SesOption {
	return func(t *Transport) {
		t.configurationSet = name
	}
}

type Transport struct {
	ses    sesiface.SESAPI
	logger logrus.FieldLogger

	configurationSet string
}

func NewSesTransport(api sesiface.SESAPI, options ...SesOption) *Transport {
	t := &Transport{
		ses:    api,
		logger: logrus.New(),
	}

	for _, option := range options {
		option(t)
	}

	return t
}

func (t *Transport) Name() string { return Strategy }

// Send submits msg as a raw message addressed to every recipient.
func (t *Transport) Send(ctx context.Context, msg email.Message) (email.Result, error) {
	id := email.NewMessageID()

	m, err := mimemsg.Build(msg, id)
	if err != nil {
		return email.Result{}, err
	}

	var raw bytes.Buffer
	if _, err := m.WriteTo(&raw); err != nil {
		return email.Result{}, email.NewTransportError(Strategy, "encode", err)
	}

	input := &ses.SendRawEmailInput{
		Source:       aws.String(strings.TrimSpace(msg.From)),
		Destinations: aws.StringSlice(mimemsg.Recipients(msg)),
		RawMessage:   &ses.RawMessage{Data: raw.Bytes()},
	}

	if t.configurationSet != "" {
		input.ConfigurationSetName = aws.String(t.configurationSet)
	}

	out, err := t.ses.SendRawEmailWithContext(ctx, input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}

		return email.Result{}, email.NewTransportError(Strategy, "SendRawEmail", err)
	}

	if messageID := aws.StringValue(out.MessageId); messageID != "" {
		id = messageID
	}

	t.logger.
		WithField("id", id).
		WithField("recipients", len(input.Destinations)).
		Debug("ses message accepted")

	return email.Result{ID: id}, nil
}

// Close is a no-op; the SES client holds no per-transport resources.
func (t *Transport) Close() error {
	return nil
}

// Register is the "Ses" strategy registrar.
func Register(c *email.Container, section config.Section) error {
	var opts Options
	if err := email.BindOptions("ses", section.Sub("ses"), &opts); err != nil {
		return err
	}

	return RegisterOptions(c, opts)
}

// RegisterOptions registers the transport with options built in code.
func RegisterOptions(c *email.Container, opts Options) error {
	if err := email.ValidateOptions("ses", opts); err != nil {
		return err
	}

	c.RegisterTransport(Strategy, func() (email.Transport, error) {
		sess, err := NewSession(opts)
		if err != nil {
			return nil, err
		}

		return NewSesTransport(ses.New(sess),
			SetLogger(c.Logger().WithField("transport", Strategy)),
			SetConfigurationSet(opts.ConfigurationSet),
		), nil
	})

	return nil
}
