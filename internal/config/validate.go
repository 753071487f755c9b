package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError collects multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

var structValidator = newStructValidator()

// newStructValidator reports field paths by their YAML names.
func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validate checks the config for internal consistency and returns a
// ValidationError if any checks fail. All checks run; errors are collected,
// not short-circuited.
func validate(cfg *Config) error {
	var errs []string

	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, describe(fe))
		}
	}

	names := make([]string, 0, len(cfg.Jobs))
	for name := range cfg.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		job := cfg.Jobs[name]
		if strings.TrimSpace(name) == "" {
			errs = append(errs, "jobs: job name must not be empty")
		}
		switch {
		case len(job.Command) == 0 && job.Shell == "":
			errs = append(errs, fmt.Sprintf("jobs.%s: one of command or shell is required", name))
		case len(job.Command) > 0 && job.Shell != "":
			errs = append(errs, fmt.Sprintf("jobs.%s: command and shell are mutually exclusive", name))
		case len(job.Command) > 0 && job.Command[0] == "":
			errs = append(errs, fmt.Sprintf("jobs.%s: command[0] must not be empty", name))
		}
		for k := range job.Env {
			if k == "" || strings.ContainsAny(k, "=\x00") {
				errs = append(errs, fmt.Sprintf("jobs.%s.env: invalid variable name %q", name, k))
			}
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	path := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s %q must be one of: %s", path, fe.Value(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be positive", path)
	case "gte":
		return fmt.Sprintf("%s must not be negative", path)
	case "excluded_with":
		return fmt.Sprintf("%s cannot be combined with %s", path, strings.ToLower(fe.Param()))
	default:
		return fmt.Sprintf("%s failed %q constraint", path, fe.Tag())
	}
}
