package email

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

var (
	MissingSenderErr    = errors.New("The sender address is required")
	NoRecipientsErr     = errors.New("At least one recipient is required")
	BlankAddressErr     = errors.New("The address is empty")
	TransportClosedErr  = errors.New("The transport has been closed")
	UnknownStrategyErr  = errors.New("No registrar found for strategy")
	ModuleLoadFailedErr = errors.New("Failed to load strategy module")
)

// ConfigurationError is returned while composing the service: a bad section,
// an unknown strategy or a module that could not be loaded.
type ConfigurationError struct {
	Key string
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	msg := e.Msg
	if e.Key != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Key)
	}

	if e.Err != nil {
		return fmt.Sprintf("email configuration: %s: %v", msg, e.Err)
	}

	return "email configuration: " + msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ValidationError reports message input rejected before any transport call.
type ValidationError struct {
	Field string
	Value string
	Msg   string
	Err   error
}

func (e *ValidationError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, msg)
	}

	return fmt.Sprintf("invalid %s: %s", e.Field, msg)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransportError is a failure raised by a concrete transport.
type TransportError struct {
	Transport string
	Op        string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %s: %v", e.Transport, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Canceled reports whether the transport gave up because its context ended.
func (e *TransportError) Canceled() bool {
	return isContextErr(e.Err)
}

// EmailError is the only error type returned by Service. Err holds the
// original cause, which may be a *ValidationError or *TransportError.
type EmailError struct {
	Transport string
	Err       error
}

func (e *EmailError) Error() string {
	return fmt.Sprintf("failed to send email using %s: %v", e.Transport, e.Err)
}

func (e *EmailError) Unwrap() error { return e.Err }

// Canceled reports whether the send was abandoned because the context ended.
func (e *EmailError) Canceled() bool {
	return isContextErr(e.Err)
}

// NewValidationError is a shorthand used by transports.
func NewValidationError(field, value, msg string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Msg: msg}
}

// NewTransportError wraps err unless it already is a *TransportError or
// *ValidationError.
func NewTransportError(transport, op string, err error) error {
	if err == nil {
		return nil
	}

	var te *TransportError
	if errors.As(err, &te) {
		return err
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return err
	}

	return &TransportError{Transport: transport, Op: op, Err: err}
}

// IsCanceled reports whether err was caused by context cancellation or deadline.
func IsCanceled(err error) bool {
	return isContextErr(err)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
