package config

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate runs struct-tag validation over cfg (the `validate:"..."` tags
// on Config and its nested structs) and additionally checks that every
// collection's Super (if any) names another entry in Collections.
func Validate(cfg *Config) error {
	if err := getValidator().Struct(cfg); err != nil {
		return err
	}

	names := make(map[string]bool, len(cfg.Collections))
	for _, c := range cfg.Collections {
		names[c.Name] = true
	}
	for _, c := range cfg.Collections {
		if c.Super != "" && !names[c.Super] {
			return fmt.Errorf("collection %q: super %q is not a configured collection", c.Name, c.Super)
		}
	}

	return nil
}
