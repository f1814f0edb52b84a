package email

import (
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"

	"github.com/interactive-solutions/go-email/config"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
	translator   ut.Translator
	validateErr  error
)

func optionsValidator() (*validator.Validate, ut.Translator, error) {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		enLang := en.New()
		uni := ut.New(enLang, enLang)

		trans, ok := uni.GetTranslator("en")
		if !ok {
			validateErr = errors.New("translator en not found")
			return
		}

		if err := enTranslations.RegisterDefaultTranslations(v, trans); err != nil {
			validateErr = err
			return
		}

		validate, translator = v, trans
	})

	return validate, translator, validateErr
}

// ValidateOptions checks a transport options struct against its `validate`
// tags. Failures are reported as a *ConfigurationError keyed by section.
func ValidateOptions(section string, opts any) error {
	v, trans, err := optionsValidator()
	if err != nil {
		return &ConfigurationError{Key: section, Msg: "Options validator unavailable", Err: err}
	}

	if err := v.Struct(opts); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return &ConfigurationError{Key: section, Msg: "Invalid options", Err: err}
		}

		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fe.Translate(trans))
		}
		sort.Strings(msgs)

		return &ConfigurationError{
			Key: section,
			Msg: "Invalid options",
			Err: errors.New(strings.Join(msgs, "; ")),
		}
	}

	return nil
}

// BindOptions decodes section into opts, which should already carry its
// defaults, and validates the result.
func BindOptions(name string, section config.Section, opts any) error {
	if section == nil {
		section = config.Empty()
	}

	if err := section.Unmarshal(opts); err != nil {
		return &ConfigurationError{Key: name, Msg: "Failed to bind options", Err: err}
	}

	return ValidateOptions(name, opts)
}
