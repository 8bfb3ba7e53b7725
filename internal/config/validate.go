package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

//nolint:gochecknoglobals // validator caches struct metadata; build it once.
var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// Report yaml key names so messages line up with `config set`.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("yaml")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		validate = v
	})
	return validate
}

// FieldError describes one invalid setting.
type FieldError struct {
	Key     string
	Message string
}

// ValidationError lists every invalid setting found by Validate.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Key+": "+f.Message)
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Validate checks every section of c. The returned error is a
// *ValidationError when one or more settings are out of range.
func (c *Config) Validate() error {
	err := getValidator().Struct(c)
	var fields []FieldError

	var verrs validator.ValidationErrors
	if err != nil {
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validating config: %w", err)
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{Key: dottedKey(fe.Namespace()), Message: describe(fe)})
		}
	}

	if c.Usage.CriticalThreshold > 0 && c.Usage.CriticalThreshold < c.Usage.WarningThreshold {
		fields = append(fields, FieldError{
			Key:     "usage.critical_threshold",
			Message: "must not be below usage.warning_threshold",
		})
	}
	if c.Lookup.MaxRetryDelay > 0 && c.Lookup.MaxRetryDelay < c.Lookup.RetryDelay {
		fields = append(fields, FieldError{
			Key:     "lookup.max_retry_delay",
			Message: "must not be below lookup.retry_delay",
		})
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// dottedKey turns "Config.lookup.max_retries" into "lookup.max_retries".
func dottedKey(ns string) string {
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "numeric":
		return "must contain only digits"
	case "url":
		return "must be a URL"
	case "hostname_rfc1123":
		return "must be a host name"
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
