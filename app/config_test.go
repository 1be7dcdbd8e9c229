package skillswap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap/skillswap/core"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig()

	require.NoError(t, err)
	require.NoError(t, config.Validate())
	assert.Equal(t, 8080, config.Port)
	assert.Equal(t, "0.0.0.0", config.Hostname)
	assert.Equal(t, string(core.TrustVerified), config.Gateway.TrustMode)
	assert.NotEmpty(t, config.Gateway.Secret)
	assert.Equal(t, "memory", config.Presence.Backend)
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		config := &Config{
			Port:     8080,
			Hostname: "localhost",
		}
		config.Gateway.TrustMode = string(core.TrustClaimed)
		config.SQLite.File = "./test.db"
		config.SQLite.Migrations = "./migrations"
		config.Presence.Backend = "memory"
		return config
	}

	t.Run("claimed mode needs no secret", func(t *testing.T) {
		require.NoError(t, base().Validate())
	})

	t.Run("verified mode requires a secret", func(t *testing.T) {
		config := base()
		config.Gateway.TrustMode = string(core.TrustVerified)

		require.Error(t, config.Validate())

		config.Gateway.Secret = []byte("0123456789abcdef")
		require.NoError(t, config.Validate())
	})

	t.Run("unknown trust mode is rejected", func(t *testing.T) {
		config := base()
		config.Gateway.TrustMode = "open"

		err := config.Validate()
		require.Error(t, err)
		assert.Contains(t, FormatValidationErrors(err), "trustmode")
	})

	t.Run("invalid port is rejected", func(t *testing.T) {
		config := base()
		config.Port = 70000

		require.Error(t, config.Validate())
	})
}

func TestBase64Encoded(t *testing.T) {
	t.Run("decodes standard base64", func(t *testing.T) {
		var b Base64Encoded
		require.NoError(t, b.UnmarshalText([]byte("c2VjcmV0")))
		assert.Equal(t, []byte("secret"), []byte(b))
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		var b Base64Encoded
		require.Error(t, b.UnmarshalText([]byte("not base64!")))
	})
}
