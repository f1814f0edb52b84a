// Package smtp delivers email over SMTP using github.com/wneessen/go-mail, or
// drops it as .eml files into a pickup directory.
//
// Importing the package registers the "Smtp" strategy.
package smtp

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"

	"github.com/interactive-solutions/go-email"
	"github.com/interactive-solutions/go-email/config"
	"github.com/interactive-solutions/go-email/internal/mimemsg"
)

const (
	Strategy = "Smtp"

	DeliveryNetwork = "network"
	DeliveryPickup  = "pickup"
)

func init() {
	email.RegisterStrategy(Strategy, Register)
}

// Options are bound from the "smtp" key of the email section.
type Options struct {
	ServerAddress   string        `mapstructure:"serverAddress" validate:"required"`
	ServerPort      int           `mapstructure:"serverPort" validate:"min=1,max=65535"`
	UserName        string        `mapstructure:"userName" validate:"required"`
	Password        string        `mapstructure:"password"`
	DeliveryMethod  string        `mapstructure:"deliveryMethod" validate:"oneof=network pickup"`
	PickupDirectory string        `mapstructure:"pickupDirectory" validate:"required_if=DeliveryMethod pickup"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"min=0"`
	EnableTLS       bool          `mapstructure:"enableTls"`
}

func DefaultOptions() Options {
	return Options{
		ServerPort:     25,
		DeliveryMethod: DeliveryNetwork,
		Timeout:        30 * time.Second,
	}
}

type TransportOption func(t *Transport)

func SetLogger(logger logrus.FieldLogger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// Transport submits one message at a time through a shared go-mail client.
// Every connection it dials carries a deadline of Timeout and is closed as soon
// as the send context ends or the transport is closed.
type Transport struct {
	opts   Options
	logger logrus.FieldLogger
	client *mail.Client

	mu     sync.Mutex
	closed atomic.Bool

	connMu sync.Mutex
	conns  map[*trackedConn]struct{}
}

func New(opts Options, options ...TransportOption) (*Transport, error) {
	if err := email.ValidateOptions("smtp", opts); err != nil {
		return nil, err
	}

	t := &Transport{
		opts:   opts,
		logger: logrus.New(),
		conns:  make(map[*trackedConn]struct{}),
	}

	for _, option := range options {
		option(t)
	}

	switch opts.DeliveryMethod {
	case DeliveryPickup:
		if err := os.MkdirAll(opts.PickupDirectory, 0o755); err != nil {
			return nil, errors.Wrapf(err, "Failed to create pickup directory %s", opts.PickupDirectory)
		}

	default:
		client, err := newClient(opts, t.dialContext)
		if err != nil {
			return nil, errors.Wrap(err, "Failed to create smtp client")
		}
		t.client = client
	}

	return t, nil
}

func newClient(opts Options, dial mail.DialContextFunc) (*mail.Client, error) {
	clientOpts := []mail.Option{
		mail.WithDialContextFunc(dial),
		mail.WithPort(opts.ServerPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}

	if opts.EnableTLS {
		clientOpts = append(clientOpts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, mail.WithTimeout(opts.Timeout))
	}

	if opts.UserName != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(opts.UserName),
			mail.WithPassword(opts.Password),
		)
	}

	return mail.NewClient(opts.ServerAddress, clientOpts...)
}

func (t *Transport) Name() string { return Strategy }

// Send builds the message and submits it. The call returns as soon as ctx is
// done, even while the submission is still blocked on the server.
func (t *Transport) Send(ctx context.Context, msg email.Message) (email.Result, error) {
	id := email.NewMessageID()

	m, err := mimemsg.Build(msg, id)
	if err != nil {
		return email.Result{}, err
	}

	if err := ctx.Err(); err != nil {
		return email.Result{}, email.NewTransportError(Strategy, "send", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- t.deliver(ctx, m, id)
	}()

	select {
	case err := <-done:
		if err != nil {
			return email.Result{}, email.NewTransportError(Strategy, "send", err)
		}

	case <-ctx.Done():
		t.logger.
			WithField("id", id).
			WithError(ctx.Err()).
			Warn("smtp send abandoned")

		return email.Result{}, email.NewTransportError(Strategy, "send", ctx.Err())
	}

	t.logger.
		WithField("id", id).
		WithField("delivery", t.opts.DeliveryMethod).
		WithField("recipients", len(mimemsg.Recipients(msg))).
		Debug("smtp message delivered")

	return email.Result{ID: id}, nil
}

func (t *Transport) deliver(ctx context.Context, m *mail.Msg, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Load() {
		return email.TransportClosedErr
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if t.opts.DeliveryMethod == DeliveryPickup {
		path := filepath.Join(t.opts.PickupDirectory, id+".eml")
		return errors.Wrapf(m.WriteToFile(path), "Failed to write %s", path)
	}

	// The dial context handed to dialContext ends once the session is set up,
	// so the send context tears down the connection instead.
	stop := context.AfterFunc(ctx, t.closeConns)
	defer stop()
	defer t.closeConns()

	return errors.Wrapf(t.client.DialAndSendWithContext(ctx, m),
		"Failed to submit message to %s:%d", t.opts.ServerAddress, t.opts.ServerPort)
}

// dialContext opens the server connection with a deadline covering the whole
// SMTP exchange, greeting included.
func (t *Transport) dialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if t.closed.Load() {
		return nil, email.TransportClosedErr
	}

	dialer := net.Dialer{Timeout: t.opts.Timeout}

	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}

	var deadline time.Time
	if t.opts.Timeout > 0 {
		deadline = time.Now().Add(t.opts.Timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}

	if !deadline.IsZero() {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
	}

	tc := &trackedConn{Conn: conn, transport: t}

	t.connMu.Lock()
	t.conns[tc] = struct{}{}
	t.connMu.Unlock()

	// Close or cancellation may have run before the conn was tracked.
	if t.closed.Load() {
		tc.Close()
		return nil, email.TransportClosedErr
	}

	if err := ctx.Err(); err != nil {
		tc.Close()
		return nil, err
	}

	return tc, nil
}

func (t *Transport) closeConns() {
	t.connMu.Lock()
	conns := make([]*trackedConn, 0, len(t.conns))
	for conn := range t.conns {
		conns = append(conns, conn)
	}
	t.connMu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// Close rejects later sends and aborts an in-flight one by closing its
// connection. It never waits for the send to finish.
func (t *Transport) Close() error {
	t.closed.Store(true)
	t.closeConns()

	return nil
}

type trackedConn struct {
	net.Conn

	transport *Transport
	once      sync.Once
}

func (c *trackedConn) Close() error {
	err := c.Conn.Close()

	c.once.Do(func() {
		c.transport.connMu.Lock()
		delete(c.transport.conns, c)
		c.transport.connMu.Unlock()
	})

	return err
}

// Register is the "Smtp" strategy registrar.
func Register(c *email.Container, section config.Section) error {
	opts := DefaultOptions()
	if err := email.BindOptions("smtp", section.Sub("smtp"), &opts); err != nil {
		return err
	}

	return RegisterOptions(c, opts)
}

// RegisterOptions registers the transport with options built in code.
func RegisterOptions(c *email.Container, opts Options) error {
	if err := email.ValidateOptions("smtp", opts); err != nil {
		return err
	}

	c.RegisterTransport(Strategy, func() (email.Transport, error) {
		return New(opts, SetLogger(c.Logger().WithField("transport", Strategy)))
	})

	return nil
}
