package email

import (
	"fmt"
	"plugin"
	"strings"

	"github.com/interactive-solutions/go-email/config"
)

// DefaultStrategy is used when the email section exists but names no strategy.
const DefaultStrategy = "Smtp"

// StrategyDescriptor is read from the email section once, at resolution time.
type StrategyDescriptor struct {
	// Name selects the registrar; see RegistrarName.
	Name string
	// Module is an optional Go plugin to load before looking up Name.
	Module string
}

// ReadStrategyDescriptor reads strategy.name and strategy.module. An empty
// section yields an empty name (no-op strategy); a populated section without a
// name defaults to DefaultStrategy.
func ReadStrategyDescriptor(section config.Section) StrategyDescriptor {
	if config.IsEmpty(section) {
		return StrategyDescriptor{}
	}

	desc := StrategyDescriptor{
		Name:   strings.TrimSpace(section.GetString("strategy.name")),
		Module: strings.TrimSpace(section.GetString("strategy.module")),
	}

	if desc.Name == "" {
		desc.Name = DefaultStrategy
	}

	return desc
}

// ModuleLoader loads an external module into the process. Loading must run the
// module's init functions so it can call RegisterStrategy.
type ModuleLoader func(path string) error

// PluginLoader loads a Go plugin built with -buildmode=plugin.
func PluginLoader(path string) error {
	_, err := plugin.Open(path)
	return err
}

type resolveOptions struct {
	strategies *StrategyRegistry
	loader     ModuleLoader
}

type ResolveOption func(o *resolveOptions)

// WithStrategies resolves against registry instead of DefaultStrategies.
func WithStrategies(registry *StrategyRegistry) ResolveOption {
	return func(o *resolveOptions) {
		o.strategies = registry
	}
}

// WithModuleLoader replaces the plugin loader.
func WithModuleLoader(loader ModuleLoader) ResolveOption {
	return func(o *resolveOptions) {
		o.loader = loader
	}
}

// Resolve picks the registrar named by the section's strategy and invokes it
// against c. Every failure is a *ConfigurationError.
func Resolve(c *Container, section config.Section, options ...ResolveOption) error {
	if section == nil {
		section = config.Empty()
	}

	opts := resolveOptions{
		strategies: DefaultStrategies,
		loader:     PluginLoader,
	}
	for _, option := range options {
		option(&opts)
	}

	desc := ReadStrategyDescriptor(section)

	logger := c.Logger().
		WithField("strategy", desc.Name).
		WithField("module", desc.Module)

	if desc.Module != "" {
		if err := opts.loader(desc.Module); err != nil {
			return &ConfigurationError{
				Key: "strategy.module",
				Msg: fmt.Sprintf("Failed to load module %q: %v", desc.Module, err),
				Err: ModuleLoadFailedErr,
			}
		}

		logger.Debug("loaded email strategy module")
	}

	name := RegistrarName(desc.Name)

	registrar, ok := opts.strategies.Lookup(name)
	if !ok {
		return &ConfigurationError{
			Key: "strategy.name",
			Msg: fmt.Sprintf("Expected a registrar named %s for strategy %q, registered: %s",
				name, desc.Name, strings.Join(opts.strategies.Names(), ", ")),
			Err: UnknownStrategyErr,
		}
	}

	if err := registrar(c, section); err != nil {
		if _, ok := err.(*ConfigurationError); ok {
			return err
		}

		return &ConfigurationError{Key: name, Msg: "Registrar failed", Err: err}
	}

	logger.
		WithField("registrar", name).
		WithField("lifetime", c.Lifetime().String()).
		Info("email strategy resolved")

	return nil
}

// LocateSection returns the email section of root. It accepts the email
// section itself (recognized by its strategy key), or a tree containing
// "services.email" or "email". Anything else yields an empty section.
func LocateSection(root config.Section) config.Section {
	if root == nil {
		return config.Empty()
	}

	if root.IsSet("strategy") || root.IsSet("strategy.name") {
		return root
	}

	for _, key := range []string{"services.email", "email"} {
		if sub := root.Sub(key); !config.IsEmpty(sub) {
			return sub
		}
	}

	return config.Empty()
}

// RegisterService resolves the configured strategy into c at lifetime and
// returns c for chaining.
func RegisterService(c *Container, root config.Section, lifetime Lifetime, options ...ResolveOption) (*Container, error) {
	c.lifetime = lifetime

	if err := Resolve(c, LocateSection(root), options...); err != nil {
		return c, err
	}

	return c, nil
}

// RegisterServiceFunc lets code pick the transport, typically by calling a
// provider's RegisterOptions. customize must register a transport.
func RegisterServiceFunc(c *Container, customize func(c *Container) error) (*Container, error) {
	if customize == nil {
		return c, &ConfigurationError{Msg: "RegisterServiceFunc customize is nil"}
	}

	if err := customize(c); err != nil {
		if _, ok := err.(*ConfigurationError); ok {
			return c, err
		}

		return c, &ConfigurationError{Msg: "Failed to customize email service", Err: err}
	}

	if c.registration == nil {
		return c, &ConfigurationError{Msg: "No email transport registered by customize"}
	}

	return c, nil
}
