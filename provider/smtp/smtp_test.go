package smtp

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/interactive-solutions/go-email"
	"github.com/interactive-solutions/go-email/config"
)

func TestSmtp(t *testing.T) {
	suite.Run(t, new(smtpTestSuite))
}

type smtpTestSuite struct {
	suite.Suite

	logger *logrus.Logger
	dir    string
}

func (suite *smtpTestSuite) SetupTest() {
	suite.logger, _ = test.NewNullLogger()
	suite.dir = suite.T().TempDir()
}

func (suite *smtpTestSuite) pickupOptions() Options {
	opts := DefaultOptions()
	opts.ServerAddress = "localhost"
	opts.UserName = "mailer"
	opts.DeliveryMethod = DeliveryPickup
	opts.PickupDirectory = suite.dir

	return opts
}

func (suite *smtpTestSuite) TestRegisterBindsSection() {
	section, err := config.NewViperFromBytes("yaml", []byte(`
strategy:
  name: Smtp
smtp:
  serverAddress: mail.example.com
  userName: mailer
  deliveryMethod: pickup
  pickupDirectory: `+strconv.Quote(suite.dir)+`
`))
	suite.Require().NoError(err)

	c := email.NewContainer(email.SetContainerLogger(suite.logger))
	suite.Require().NoError(email.Resolve(c, section))
	suite.Equal(Strategy, c.TransportName())

	svc, err := c.Service()
	suite.Require().NoError(err)
	defer c.Close()

	res, err := svc.SendTo(context.Background(), "sender@example.com", "a@example.com, b@example.com", "Hello", "body")
	suite.Require().NoError(err)

	data, err := os.ReadFile(filepath.Join(suite.dir, res.ID+".eml"))
	suite.Require().NoError(err)
	suite.Contains(string(data), "Subject: Hello")
	suite.Contains(string(data), "<b@example.com>")
}

func (suite *smtpTestSuite) TestRegisterDefaultsPort() {
	opts := DefaultOptions()
	suite.Equal(25, opts.ServerPort)
	suite.Equal(DeliveryNetwork, opts.DeliveryMethod)
	suite.Equal(30*time.Second, opts.Timeout)
}

func (suite *smtpTestSuite) TestRegisterRejectsMissingServerAddress() {
	section, err := config.NewViperFromBytes("yaml", []byte(`
strategy:
  name: Smtp
smtp:
  userName: mailer
`))
	suite.Require().NoError(err)

	err = email.Resolve(email.NewContainer(email.SetContainerLogger(suite.logger)), section)

	var ce *email.ConfigurationError
	suite.Require().True(errors.As(err, &ce))
	suite.Contains(err.Error(), "ServerAddress")
}

func (suite *smtpTestSuite) TestRegisterRejectsPickupWithoutDirectory() {
	opts := suite.pickupOptions()
	opts.PickupDirectory = ""

	err := RegisterOptions(email.NewContainer(), opts)

	var ce *email.ConfigurationError
	suite.True(errors.As(err, &ce))
}

func (suite *smtpTestSuite) TestBlankRecipientFailsBeforeDelivery() {
	transport, err := New(suite.pickupOptions(), SetLogger(suite.logger))
	suite.Require().NoError(err)

	_, err = transport.Send(context.Background(), email.Message{
		From: "sender@example.com",
		To:   []string{"a@example.com", " "},
	})

	var ve *email.ValidationError
	suite.Require().True(errors.As(err, &ve))
	suite.Equal("to", ve.Field)

	entries, err := os.ReadDir(suite.dir)
	suite.Require().NoError(err)
	suite.Empty(entries)
}

func (suite *smtpTestSuite) TestDoesNotMutateMessage() {
	transport, err := New(suite.pickupOptions(), SetLogger(suite.logger))
	suite.Require().NoError(err)

	msg := email.Message{From: " sender@example.com ", To: []string{" a@example.com "}}
	_, err = transport.Send(context.Background(), msg)
	suite.Require().NoError(err)

	suite.Equal([]string{" a@example.com "}, msg.To)
	suite.Equal(" sender@example.com ", msg.From)
}

func (suite *smtpTestSuite) TestConcurrentSendsAreSerialized() {
	transport, err := New(suite.pickupOptions(), SetLogger(suite.logger))
	suite.Require().NoError(err)

	var wg sync.WaitGroup
	ids := make([]string, 10)

	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			res, err := transport.Send(context.Background(), email.Message{
				From: "sender@example.com",
				To:   []string{"a@example.com"},
				Body: strconv.Itoa(i),
			})
			assert.NoError(suite.T(), err)
			ids[i] = res.ID
		}(i)
	}
	wg.Wait()

	entries, err := os.ReadDir(suite.dir)
	suite.Require().NoError(err)
	suite.Len(entries, len(ids))

	for _, id := range ids {
		suite.Len(id, 32)
		suite.FileExists(filepath.Join(suite.dir, id+".eml"))
	}
}

func (suite *smtpTestSuite) TestSendAfterClose() {
	transport, err := New(suite.pickupOptions(), SetLogger(suite.logger))
	suite.Require().NoError(err)
	suite.Require().NoError(transport.Close())
	suite.Require().NoError(transport.Close())

	_, err = transport.Send(context.Background(), email.Message{From: "sender@example.com", To: []string{"a@example.com"}})
	suite.True(errors.Is(err, email.TransportClosedErr))
}

// silentServer accepts connections and never sends the SMTP greeting.
func (suite *smtpTestSuite) silentServer(timeout time.Duration) Options {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	suite.Require().NoError(err)

	var mu sync.Mutex
	var conns []net.Conn

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	suite.T().Cleanup(func() {
		listener.Close()

		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			conn.Close()
		}
	})

	opts := DefaultOptions()
	opts.ServerAddress = "127.0.0.1"
	opts.ServerPort = listener.Addr().(*net.TCPAddr).Port
	opts.UserName = "mailer"
	opts.Timeout = timeout

	return opts
}

// within runs fn and reports whether it returned before limit.
func within(limit time.Duration, fn func()) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	select {
	case <-done:
		return true
	case <-time.After(limit):
		return false
	}
}

func (suite *smtpTestSuite) TestCancellationReturnsPromptly() {
	transport, err := New(suite.silentServer(10*time.Second), SetLogger(suite.logger))
	suite.Require().NoError(err)
	defer transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err = transport.Send(ctx, email.Message{From: "sender@example.com", To: []string{"a@example.com"}})
	suite.Less(time.Since(started), 5*time.Second)

	var te *email.TransportError
	suite.Require().True(errors.As(err, &te))
	suite.True(te.Canceled())
	suite.Equal(Strategy, te.Transport)
}

func (suite *smtpTestSuite) TestStalledServerReleasesTransport() {
	transport, err := New(suite.silentServer(2*time.Second), SetLogger(suite.logger))
	suite.Require().NoError(err)

	msg := email.Message{From: "sender@example.com", To: []string{"a@example.com"}}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = transport.Send(ctx, msg)
	suite.Require().True(email.IsCanceled(err))

	// The next send owns the transport again and fails on the greeting deadline.
	next, cancelNext := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelNext()

	started := time.Now()
	_, err = transport.Send(next, msg)
	suite.Error(err)
	suite.Less(time.Since(started), 8*time.Second)

	suite.True(within(time.Second, func() {
		suite.NoError(transport.Close())
	}), "Close blocked")

	_, err = transport.Send(context.Background(), msg)
	suite.True(errors.Is(err, email.TransportClosedErr))
}

func (suite *smtpTestSuite) TestCloseAbortsInFlightSend() {
	transport, err := New(suite.silentServer(time.Minute), SetLogger(suite.logger))
	suite.Require().NoError(err)

	sent := make(chan error, 1)
	go func() {
		_, err := transport.Send(context.Background(), email.Message{From: "sender@example.com", To: []string{"a@example.com"}})
		sent <- err
	}()

	time.Sleep(200 * time.Millisecond)

	suite.True(within(time.Second, func() {
		suite.NoError(transport.Close())
	}), "Close blocked")

	select {
	case err := <-sent:
		suite.Error(err)
	case <-time.After(5 * time.Second):
		suite.Fail("send still blocked after Close")
	}
}

func (suite *smtpTestSuite) TestContainerCloseAfterStalledSend() {
	c := email.NewContainer(email.SetContainerLogger(suite.logger))
	suite.Require().NoError(RegisterOptions(c, suite.silentServer(time.Minute)))

	svc, err := c.Service()
	suite.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = svc.Send(ctx, email.Message{From: "sender@example.com", To: []string{"a@example.com"}})
	suite.Require().Error(err)

	suite.True(within(time.Second, func() {
		suite.NoError(c.Close())
	}), "Container.Close blocked")
}

func (suite *smtpTestSuite) TestAlreadyCanceledContext() {
	transport, err := New(suite.pickupOptions(), SetLogger(suite.logger))
	suite.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = transport.Send(ctx, email.Message{From: "sender@example.com", To: []string{"a@example.com"}})
	suite.True(email.IsCanceled(err))

	entries, err := os.ReadDir(suite.dir)
	suite.Require().NoError(err)
	suite.Empty(entries)
}

func TestRegisteredAsStrategy(t *testing.T) {
	_, ok := email.DefaultStrategies.Lookup("AddSmtpStrategy")
	require.True(t, ok)
}
