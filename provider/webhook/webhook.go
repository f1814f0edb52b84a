// Package webhook relays email to an HTTP endpoint as JSON, for hosts that
// hand delivery to another service.
//
// Importing the package registers the "Webhook" strategy.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/interactive-solutions/go-email"
	"github.com/interactive-solutions/go-email/config"
	"github.com/interactive-solutions/go-email/internal/mimemsg"
)

const Strategy = "Webhook"

func init() {
	email.RegisterStrategy(Strategy, Register)
}

// Options are bound from the "webhook" key of the email section.
type Options struct {
	URL      string        `mapstructure:"url" validate:"required,url"`
	UserName string        `mapstructure:"userName"`
	Password string        `mapstructure:"password" validate:"excluded_without=UserName"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"min=0"`
}

func DefaultOptions() Options {
	return Options{Timeout: 30 * time.Second}
}

// payload is the request body; it mirrors email.Message with trimmed
// addresses.
type payload struct {
	From        string   `json:"from"`
	To          []string `json:"to"`
	Cc          []string `json:"cc"`
	Bcc         []string `json:"bcc"`
	Attachments []string `json:"attachments"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	HTML        bool     `json:"html"`
}

type response struct {
	ID string `json:"id"`
}

type webhook struct {
	client *retryablehttp.Client
	logger logrus.FieldLogger

	url      string
	username string
	password string
}

func NewWebhookTransport(opts Options, logger logrus.FieldLogger) email.Transport {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = leveledLogger{logger: logger}
	client.HTTPClient.Timeout = opts.Timeout

	return &webhook{
		client: client,
		logger: logger,

		url:      opts.URL,
		username: opts.UserName,
		password: opts.Password,
	}
}

func (w *webhook) Name() string { return Strategy }

func (w *webhook) Send(ctx context.Context, msg email.Message) (email.Result, error) {
	if err := mimemsg.Validate(msg); err != nil {
		return email.Result{}, err
	}

	body, err := json.Marshal(payload{
		From:        strings.TrimSpace(msg.From),
		To:          trimAll(msg.To),
		Cc:          trimAll(msg.Cc),
		Bcc:         trimAll(msg.Bcc),
		Attachments: msg.Attachments,
		Subject:     msg.Subject,
		Body:        msg.Body,
		HTML:        msg.BodyIsHTML,
	})
	if err != nil {
		return email.Result{}, email.NewTransportError(Strategy, "encode", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return email.Result{}, email.NewTransportError(Strategy, "request", err)
	}

	if w.username != "" {
		req.SetBasicAuth(w.username, w.password)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	req.Header.Set("User-Agent", email.UserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}

		return email.Result{}, email.NewTransportError(Strategy, "post", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return email.Result{}, email.NewTransportError(Strategy, "read", err)
	}

	if resp.StatusCode >= 300 || resp.StatusCode <= 199 {
		return email.Result{}, email.NewTransportError(Strategy, "post",
			errors.Errorf("Unexpected response code %d received from %s", resp.StatusCode, w.url))
	}

	var out response
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			w.logger.WithError(err).Debug("webhook response carries no json id")
		}
	}

	if out.ID == "" {
		out.ID = email.NewMessageID()
	}

	w.logger.
		WithField("id", out.ID).
		WithField("status", resp.StatusCode).
		Debug("webhook accepted message")

	return email.Result{ID: out.ID}, nil
}

func (w *webhook) Close() error {
	w.client.HTTPClient.CloseIdleConnections()
	return nil
}

// leveledLogger routes retryablehttp's request logging through logrus levels.
type leveledLogger struct {
	logger logrus.FieldLogger
}

func (l leveledLogger) with(keysAndValues []interface{}) logrus.FieldLogger {
	logger := l.logger
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			logger = logger.WithField(key, keysAndValues[i+1])
		}
	}

	return logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Error(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Info(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Debug(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Warn(msg)
}

func trimAll(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, strings.TrimSpace(s))
	}

	return out
}

// Register is the "Webhook" strategy registrar.
func Register(c *email.Container, section config.Section) error {
	opts := DefaultOptions()
	if err := email.BindOptions("webhook", section.Sub("webhook"), &opts); err != nil {
		return err
	}

	return RegisterOptions(c, opts)
}

// RegisterOptions registers the transport with options built in code.
func RegisterOptions(c *email.Container, opts Options) error {
	if err := email.ValidateOptions("webhook", opts); err != nil {
		return err
	}

	c.RegisterTransport(Strategy, func() (email.Transport, error) {
		return NewWebhookTransport(opts, c.Logger().WithField("transport", Strategy)), nil
	})

	return nil
}
