// Package validator provides struct validation for experiment
// configuration.
//
// This package wraps go-playground/validator. Field names in errors are the
// configuration keys taken from `mapstructure` tags, so a message points at
// the key a user has to fix:
//
//	if err := validator.Validate(cfg); err != nil {
//	    // err is a validator.ValidationErrors
//	}
package validator
