package email

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Lifetime controls how long a resolved Service and its transport live.
type Lifetime int

const (
	// Singleton shares one Service per Container; Container.Close tears it down.
	Singleton Lifetime = iota
	// Scoped shares one Service per Scope; Scope.Close tears it down.
	Scoped
	// Transient builds a new Service on every call; the caller must Close it.
	Transient
)

func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Scoped:
		return "scoped"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}

type ContainerOption func(c *Container)

func SetContainerLogger(logger logrus.FieldLogger) ContainerOption {
	return func(c *Container) {
		c.logger = logger
	}
}

func SetLifetime(lifetime Lifetime) ContainerOption {
	return func(c *Container) {
		c.lifetime = lifetime
	}
}

type transportRegistration struct {
	name     string
	factory  TransportFactory
	lifetime Lifetime
}

// Container collects the transport registration during startup and hands out
// Services afterwards. Registration is not safe for concurrent use; resolving
// is.
type Container struct {
	logger   logrus.FieldLogger
	lifetime Lifetime

	registration *transportRegistration

	mu        sync.Mutex
	singleton *Service
	closed    bool
}

func NewContainer(options ...ContainerOption) *Container {
	c := &Container{
		logger:   logrus.New(),
		lifetime: Singleton,
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// Logger is handed to registrars so transports log through the host logger.
func (c *Container) Logger() logrus.FieldLogger {
	return c.logger
}

// Lifetime is the lifetime requested by the caller of composition.
func (c *Container) Lifetime() Lifetime {
	return c.lifetime
}

// RegisterTransport records the transport factory at the container lifetime.
// A second registration replaces the first.
func (c *Container) RegisterTransport(name string, factory TransportFactory) {
	if factory == nil {
		panic("email: RegisterTransport factory is nil")
	}

	if c.registration != nil {
		c.logger.
			WithField("previous", c.registration.name).
			WithField("transport", name).
			Debug("replacing email transport registration")
	}

	c.registration = &transportRegistration{
		name:     name,
		factory:  factory,
		lifetime: c.lifetime,
	}
}

// TransportName returns the name of the registered transport, or "".
func (c *Container) TransportName() string {
	if c.registration == nil {
		return ""
	}

	return c.registration.name
}

// Service resolves the email service. Scoped registrations must be resolved
// through NewScope instead.
func (c *Container) Service() (*Service, error) {
	if c.registration == nil {
		return nil, &ConfigurationError{Msg: "No email transport registered"}
	}

	switch c.registration.lifetime {
	case Singleton:
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.closed {
			return nil, errors.New("The container has been closed")
		}

		if c.singleton == nil {
			svc, err := c.build()
			if err != nil {
				return nil, err
			}
			c.singleton = svc
		}

		return c.singleton, nil

	case Transient:
		return c.build()

	case Scoped:
		return nil, &ConfigurationError{Msg: "Scoped email service must be resolved from a scope"}

	default:
		return nil, &ConfigurationError{Msg: "Unknown lifetime " + c.registration.lifetime.String()}
	}
}

// NewScope opens a scope. For non scoped registrations the scope simply
// delegates to the container.
func (c *Container) NewScope() *Scope {
	return &Scope{container: c}
}

// Close tears down the singleton service, if one was built.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	if c.singleton == nil {
		return nil
	}

	err := c.singleton.Close()
	c.singleton = nil

	return err
}

func (c *Container) build() (*Service, error) {
	transport, err := c.registration.factory()
	if err != nil {
		return nil, &ConfigurationError{
			Key: c.registration.name,
			Msg: "Failed to build email transport",
			Err: err,
		}
	}

	return NewService(transport,
		SetLogger(c.logger),
		SetTransportName(c.registration.name),
	), nil
}

// Scope owns the Service resolved for a scoped registration.
type Scope struct {
	container *Container

	mu      sync.Mutex
	service *Service
	closed  bool
}

func (s *Scope) Service() (*Service, error) {
	reg := s.container.registration
	if reg == nil || reg.lifetime != Scoped {
		return s.container.Service()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("The scope has been closed")
	}

	if s.service == nil {
		svc, err := s.container.build()
		if err != nil {
			return nil, err
		}
		s.service = svc
	}

	return s.service, nil
}

func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	if s.service == nil {
		return nil
	}

	err := s.service.Close()
	s.service = nil

	return err
}
