package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{
		Logging:         LoggingConfig{Level: "INFO", Format: "text", Output: "stdout"},
		ListenPort:      2401,
		Hash:            "md5",
		ShutdownTimeout: 30_000_000_000,
		Collections: []CollectionConfig{
			{Name: "main", Release: "rcs", Prefix: "/srv/main", ScanPath: "/srv/main", ErrorMode: "abort"},
		},
	}
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "NOISY"
	assert.Error(t, Validate(cfg))
}

func TestValidate_InvalidHash(t *testing.T) {
	cfg := validConfig()
	cfg.Hash = "crc32"
	assert.Error(t, Validate(cfg))
}

func TestValidate_MissingCollections(t *testing.T) {
	cfg := validConfig()
	cfg.Collections = nil
	assert.Error(t, Validate(cfg))
}

func TestValidate_BadListenPort(t *testing.T) {
	cfg := validConfig()
	cfg.ListenPort = 70000
	assert.Error(t, Validate(cfg))
}

func TestValidate_UnknownSuperReference(t *testing.T) {
	cfg := validConfig()
	cfg.Collections[0].Super = "ghost"
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestValidate_InvalidCollectionRelease(t *testing.T) {
	cfg := validConfig()
	cfg.Collections[0].Release = "binary"
	assert.Error(t, Validate(cfg))
}
