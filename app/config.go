package skillswap

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/skillswap/skillswap/core"
)

type Config struct {
	// Port is the port number to listen on. The default is 8080.
	Port int `validate:"required,port" default:"8080"`
	// Hostname is the hostname to listen on. The default is 0.0.0.0.
	Hostname string `validate:"required" default:"0.0.0.0"`
	// AllowedOrigins is a list of origins that are allowed to connect to
	// the server. The default is ["*"].
	AllowedOrigins []string

	Gateway struct {
		// TrustMode selects how socket identities are established:
		// "verified" requires a signed identity token, "claimed" trusts
		// the bare user id the client asserts. Verified is the default
		// and is required whenever the server is reachable from an
		// untrusted network.
		TrustMode string `mapstructure:"trust_mode" validate:"required,oneof=verified claimed"`
		// Secret is the key identity tokens are signed with, base64
		// encoded. Required in verified mode.
		Secret Base64Encoded
	}

	SQLite struct {
		// File is the path to the SQLite database file.
		File string `validate:"required"`
		// Migrations is the path to the directory the migration files
		// reside in.
		Migrations string `validate:"required"`
	}

	Presence struct {
		// Backend is "memory" for the single-node tracker or "redis" for
		// multi-process deployments.
		Backend string `validate:"required,oneof=memory redis"`
		Redis   struct {
			Address   string
			Password  string
			DB        int
			KeyPrefix string `mapstructure:"key_prefix"`
		}
	}

	valid bool
}

type Base64Encoded []byte

func (b *Base64Encoded) UnmarshalText(text []byte) error {
	dec, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("base64 decode: %w", err)
	}
	*b = dec
	return nil
}

// LoadConfig loads the configuration from the config file and environment
// variables. Any invalid value is deferred to the validation step.
func LoadConfig() (*Config, error) {
	config := &Config{}
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("port", 8080)
	viper.SetDefault("hostname", "0.0.0.0")
	viper.SetDefault("gateway.trust_mode", string(core.TrustVerified))
	// generate a random secret so a fresh checkout runs out of the box
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	viper.SetDefault("gateway.secret", base64.StdEncoding.EncodeToString(secret))
	viper.SetDefault("sqlite.file", "./skillswap.db")
	viper.SetDefault("sqlite.migrations", "./migrations")
	viper.SetDefault("presence.backend", "memory")
	viper.SetDefault("presence.redis.address", "localhost:6379")
	viper.SetDefault("presence.redis.db", 0)
	viper.SetDefault("presence.redis.key_prefix", "skillswap:presence")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := viper.Unmarshal(&config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToSliceHookFunc(",")),
		),
	); err != nil {
		// defer error to validation step
		return config, nil
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.valid {
		return nil
	}
	if err := validate.Struct(c); err != nil {
		return err
	}
	if core.TrustMode(c.Gateway.TrustMode) == core.TrustVerified && len(c.Gateway.Secret) == 0 {
		return errors.New("gateway.secret is required in verified trust mode")
	}
	c.valid = true
	return nil
}

func FormatValidationErrors(err error) string {
	errors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	trans, _ := uniTrans.GetTranslator("en")
	translated := errors.Translate(trans)

	var sb strings.Builder
	for _, v := range translated {
		sb.WriteString(v)
		sb.WriteString("\n")
	}
	return sb.String()
}
