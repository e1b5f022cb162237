package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Verify())
}

func TestVerify(t *testing.T) {
	for _, test := range []struct {
		name     string
		mutate   func(c *Config)
		expected string
	}{
		{name: "empty address", mutate: func(c *Config) { c.HTTP.Addr = "" }, expected: "http.addr"},
		{name: "cors without origins", mutate: func(c *Config) {
			c.HTTP.CORS.Enabled = true
			c.HTTP.CORS.AllowedOrigins = nil
		}, expected: "allowed_origins"},
		{name: "log format", mutate: func(c *Config) { c.Log.Format = "raw" }, expected: "log.format"},
		{name: "timestamp format", mutate: func(c *Config) { c.Log.TimestampFormat = "RFC3339" }, expected: "log.timestamp-format"},
		{name: "auth hook config", mutate: func(c *Config) { c.AuthHook.ConfigFile = "" }, expected: "authHook.configFile"},
		{name: "metadata path", mutate: func(c *Config) { c.Metadata.Path = "" }, expected: "metadata.path"},
		{name: "metadata engine", mutate: func(c *Config) { c.Metadata.Engine = "postgres" }, expected: "metadata.engine"},
		{name: "concurrency", mutate: func(c *Config) { c.Metadata.ResolveConcurrency = 0 }, expected: "resolveConcurrency"},
		{name: "shutdown timeout", mutate: func(c *Config) { c.Server.ShutdownTimeout = 0 }, expected: "shutdownTimeout"},
	} {
		t.Run(test.name, func(t *testing.T) {
			config := DefaultConfig()
			test.mutate(config)
			err := config.Verify()
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), test.expected)
			}
		})
	}
}
