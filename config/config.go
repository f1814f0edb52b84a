// Package config exposes the read-only configuration view consumed while the
// email service is composed.
//
// Strategy registrars receive a Section and never parse files themselves; the
// concrete backing store (viper in this package) is chosen by the host.
package config

import "time"

// Section is a key/value view rooted at some path of the configuration tree.
// Keys are case-insensitive and use "." as the path separator.
type Section interface {
	// GetString returns the value for key, or "" when unset.
	GetString(key string) string

	// GetInt returns the value for key, or 0 when unset or not numeric.
	GetInt(key string) int

	// GetBool returns the value for key, or false when unset.
	GetBool(key string) bool

	// GetDuration returns the value for key parsed as a duration ("30s"), or 0.
	GetDuration(key string) time.Duration

	// IsSet reports whether key holds a value.
	IsSet(key string) bool

	// Sub returns the section rooted at key. A missing key yields an empty
	// section, never nil.
	Sub(key string) Section

	// Keys lists every leaf key below this section.
	Keys() []string

	// Unmarshal decodes the section into out using `mapstructure` tags.
	// Fields absent from the section keep their current value.
	Unmarshal(out any) error
}

// IsEmpty reports whether s holds no keys at all.
func IsEmpty(s Section) bool {
	return s == nil || len(s.Keys()) == 0
}
