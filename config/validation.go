package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate runs the struct tag rules and the cross field rules tags
// cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	switch cfg.Storage.Type {
	case "local":
		if cfg.Storage.Local["base_dir"] == nil || fmt.Sprint(cfg.Storage.Local["base_dir"]) == "" {
			return fmt.Errorf("storage.local.base_dir is required for local storage")
		}
	case "b2":
		for _, key := range []string{"key_id", "application_key", "bucket"} {
			if fmt.Sprint(cfg.Storage.B2[key]) == "" || cfg.Storage.B2[key] == nil {
				return fmt.Errorf("storage.b2.%s is required for b2 storage", key)
			}
		}
	case "s3":
		if cfg.Storage.S3["bucket"] == nil || fmt.Sprint(cfg.Storage.S3["bucket"]) == "" {
			return fmt.Errorf("storage.s3.bucket is required for s3 storage")
		}
	}

	if cfg.Audit.Type == "badger" && cfg.Audit.BadgerDir == "" {
		return fmt.Errorf("audit.badger_dir is required for badger audit sink")
	}

	return nil
}

func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
