package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags first, then the rules that span fields.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if !cfg.Binary.Enabled() && !cfg.HTTP.Enabled() {
		return fmt.Errorf("binary.listen and http.listen: at least one surface must be enabled")
	}

	if cfg.Binary.Enabled() {
		if err := validateAddr(cfg.Binary.Listen); err != nil {
			return fmt.Errorf("binary.listen: %w", err)
		}
	}
	if cfg.HTTP.Enabled() {
		if err := validateAddr(cfg.HTTP.Listen); err != nil {
			return fmt.Errorf("http.listen: %w", err)
		}
	}
	if cfg.Binary.Enabled() && cfg.HTTP.Enabled() && cfg.Binary.Listen == cfg.HTTP.Listen {
		if _, port, _ := net.SplitHostPort(cfg.Binary.Listen); port != "0" {
			return fmt.Errorf("binary.listen and http.listen: both surfaces use %s", cfg.Binary.Listen)
		}
	}

	if w := cfg.Binary.Workload; w.MinDelay > w.MaxDelay {
		return fmt.Errorf("binary.workload: min_delay %s exceeds max_delay %s", w.MinDelay, w.MaxDelay)
	}

	if cfg.Metrics.Enabled {
		if err := validateAddr(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics.listen: %w", err)
		}
	}
	return nil
}

func validateAddr(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return nil
}

func formatValidationError(err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		e := errs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
