package config

import (
	"bytes"
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Viper is a Section backed by github.com/spf13/viper. Sub sections are views
// over the same instance, so environment overrides reach every level.
type Viper struct {
	v      *viper.Viper
	prefix string
}

// NewViper loads the configuration file at path. The format is inferred from
// the extension. When envPrefix is not empty, environment variables such as
// PREFIX_SERVICES_EMAIL_STRATEGY_NAME override file values, including keys the
// file does not contain.
func NewViper(path, envPrefix string) (*Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "Failed to read config file %s", path)
	}

	return &Viper{v: v}, nil
}

// NewViperFromBytes loads configuration from memory. configType is any format
// viper understands ("yaml", "json", "toml").
func NewViperFromBytes(configType string, data []byte) (*Viper, error) {
	if strings.TrimSpace(configType) == "" {
		return nil, errors.New("config type is required")
	}

	v := viper.New()
	v.SetConfigType(configType)

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, errors.Wrap(err, "Failed to parse config")
	}

	return &Viper{v: v}, nil
}

// FromViper wraps an existing viper instance.
func FromViper(v *viper.Viper) *Viper {
	if v == nil {
		v = viper.New()
	}

	return &Viper{v: v}
}

// Empty returns a section without any keys.
func Empty() *Viper {
	return &Viper{v: viper.New()}
}

func (vc *Viper) key(key string) string {
	key = strings.ToLower(key)
	if vc.prefix == "" {
		return key
	}

	return vc.prefix + "." + key
}

func (vc *Viper) GetString(key string) string {
	return vc.v.GetString(vc.key(key))
}

func (vc *Viper) GetInt(key string) int {
	return vc.v.GetInt(vc.key(key))
}

func (vc *Viper) GetBool(key string) bool {
	return vc.v.GetBool(vc.key(key))
}

func (vc *Viper) GetDuration(key string) time.Duration {
	return vc.v.GetDuration(vc.key(key))
}

func (vc *Viper) IsSet(key string) bool {
	return vc.v.IsSet(vc.key(key))
}

func (vc *Viper) Sub(key string) Section {
	return &Viper{v: vc.v, prefix: vc.key(key)}
}

func (vc *Viper) Keys() []string {
	all := vc.v.AllKeys()
	if vc.prefix == "" {
		return all
	}

	keys := make([]string, 0, len(all))
	for _, key := range all {
		if rest, ok := strings.CutPrefix(key, vc.prefix+"."); ok {
			keys = append(keys, rest)
		}
	}

	return keys
}

// Unmarshal decodes the section into out. Besides the keys present in the
// file, every top-level field of out is looked up on its own, so values that
// only exist in the environment are bound too.
func (vc *Viper) Unmarshal(out any) error {
	view := viper.New()

	for _, key := range vc.Keys() {
		view.Set(key, vc.v.Get(vc.key(key)))
	}

	for _, key := range fieldKeys(out) {
		if vc.IsSet(key) {
			view.Set(key, vc.v.Get(vc.key(key)))
		}
	}

	return errors.Wrap(view.Unmarshal(out), "Failed to decode config section")
}

// fieldKeys lists the mapstructure keys of the struct out points to.
func fieldKeys(out any) []string {
	t := reflect.TypeOf(out)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}

	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = field.Name
		}

		keys = append(keys, name)
	}

	return keys
}
