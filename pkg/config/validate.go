package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their configuration key instead of the Go name.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// FieldError is one invalid setting.
type FieldError struct {
	// Key is the dotted configuration key, e.g. "api.key".
	Key     string
	Tag     string
	Param   string
	Message string
}

// ValidationError lists every invalid setting.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid configuration"
	}
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Has reports whether key failed validation.
func (e *ValidationError) Has(key string) bool {
	for _, f := range e.Fields {
		if f.Key == key {
			return true
		}
	}
	return false
}

// Validate checks struct tags and the rules spanning several settings.
// It returns a *ValidationError.
func (c *Config) Validate() error {
	verr := &ValidationError{}

	if err := getValidator().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validate configuration: %w", err)
		}
		for _, fe := range fieldErrs {
			key := fieldKey(fe.Namespace())
			verr.Fields = append(verr.Fields, FieldError{
				Key:     key,
				Tag:     fe.Tag(),
				Param:   fe.Param(),
				Message: message(key, fe.Tag(), fe.Param()),
			})
		}
	}

	if b := c.Batch; b.MinSize > b.DefaultSize || b.DefaultSize > b.MaxSize {
		verr.Fields = append(verr.Fields, FieldError{
			Key:     "batch.default_size",
			Tag:     "range",
			Message: fmt.Sprintf("batch sizes must satisfy min (%d) <= default (%d) <= max (%d)", b.MinSize, b.DefaultSize, b.MaxSize),
		})
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		verr.Fields = append(verr.Fields, FieldError{
			Key:     "retry.max_delay",
			Tag:     "gtefield",
			Message: "retry.max_delay must not be below retry.base_delay",
		})
	}
	if c.Upload.Endpoint != "" && c.Upload.Bucket == "" {
		verr.Fields = append(verr.Fields, FieldError{
			Key:     "upload.bucket",
			Tag:     "required_with",
			Message: "upload.bucket is required when upload.endpoint is set",
		})
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// fieldKey turns "Config.api.key" or "Config.output.formats[1]" into a dotted key.
func fieldKey(namespace string) string {
	_, key, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	if i := strings.IndexByte(key, '['); i >= 0 {
		key = key[:i]
	}
	return key
}

func message(key, tag, param string) string {
	switch tag {
	case "required":
		return key + " is required"
	case "url":
		return key + " must be a valid URL"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", key, param)
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", key, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", key, param)
	default:
		return fmt.Sprintf("%s failed %s validation", key, tag)
	}
}
