package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/goliatone/go-authforms/pkg/features"
)

// envPrefix scopes environment overrides. A double underscore separates
// nesting levels so field names keep their own underscores:
// AUTHFORMS_REGISTRATION__GIVEN_NAME__REQUIRED=true.
const envPrefix = "AUTHFORMS_"

const (
	backendMemory = "memory"
	backendKratos = "kratos"
)

type serverConfig struct {
	Addr          string `koanf:"addr"`
	Prefix        string `koanf:"prefix"`
	HomeURL       string `koanf:"home_url"`
	PublicURL     string `koanf:"public_url"`
	SecureCookies bool   `koanf:"secure_cookies"`
	RateLimit     int    `koanf:"rate_limit"`
	DisableCSRF   bool   `koanf:"disable_csrf"`
}

type logConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type kratosConfig struct {
	PublicURL string `koanf:"public_url"`
	AdminURL  string `koanf:"admin_url"`
}

type backendConfig struct {
	Kind   string       `koanf:"kind"`
	Kratos kratosConfig `koanf:"kratos"`
}

type themeVariantConfig struct {
	Tokens map[string]string `koanf:"tokens"`
}

type themeConfig struct {
	Name         string                        `koanf:"name"`
	Variant      string                        `koanf:"variant"`
	Tokens       map[string]string             `koanf:"tokens"`
	AssetsPrefix string                        `koanf:"assets_prefix"`
	Stylesheet   string                        `koanf:"stylesheet"`
	Variants     map[string]themeVariantConfig `koanf:"variants"`
}

type termsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// appConfig is the resolved configuration shared by every command.
type appConfig struct {
	Server  serverConfig  `koanf:"server"`
	Log     logConfig     `koanf:"log"`
	Backend backendConfig `koanf:"backend"`
	Terms   termsConfig   `koanf:"terms"`
	Theme   themeConfig   `koanf:"theme"`
	// Presets points at a JSON document of label and metadata overrides.
	Presets string `koanf:"presets"`

	Features *features.Config `koanf:"-"`
}

func (c *appConfig) validate() error {
	switch c.Backend.Kind {
	case backendMemory:
	case backendKratos:
		if strings.TrimSpace(c.Backend.Kratos.PublicURL) == "" {
			return errors.New("backend.kratos.public_url is required for the kratos backend")
		}
	default:
		return fmt.Errorf("backend.kind must be %q or %q, got %q", backendMemory, backendKratos, c.Backend.Kind)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative, got %d", c.Server.RateLimit)
	}
	return nil
}

var defaults = map[string]any{
	"server.addr":           ":8080",
	"server.prefix":         "/",
	"server.home_url":       "/",
	"server.public_url":     "",
	"server.secure_cookies": false,
	"server.rate_limit":     0,
	"server.disable_csrf":   false,
	"log.level":             "info",
	"log.format":            "text",
	"backend.kind":          backendMemory,
	"terms.enabled":         false,
}

// flagKeys maps global flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"backend":    "backend.kind",
	"terms":      "terms.enabled",
	"addr":       "server.addr",
	"prefix":     "server.prefix",
}

type configSources struct {
	file    string
	envFile string
	flags   *pflag.FlagSet
}

// loadConfig layers defaults, the YAML file, the .env file, the environment
// and finally explicitly set flags.
func loadConfig(src configSources) (*appConfig, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("config: default %s: %w", key, err)
		}
	}
	if err := features.SetDefaults(k, "registration"); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if src.file != "" {
		if err := k.Load(file.Provider(src.file), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", src.file, err)
		}
	}

	if src.envFile != "" {
		if err := loadDotenv(k, src.envFile); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	if src.flags != nil {
		provider := posflag.ProviderWithFlag(src.flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, f.Value.String()
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("config: load flags: %w", err)
		}
	}

	cfg := &appConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	toggles, err := features.Load(k, "registration")
	if err != nil {
		return nil, fmt.Errorf("config: registration toggles: %w", err)
	}
	cfg.Features = toggles
	cfg.Backend.Kind = strings.ToLower(strings.TrimSpace(cfg.Backend.Kind))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// loadDotenv reads AUTHFORMS_ variables from a dotenv file. A missing file
// is not an error.
func loadDotenv(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", path, err)
	}

	raw := koanf.New(".")
	if err := raw.Load(file.Provider(path), dotenv.Parser()); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	for name, value := range raw.All() {
		key := envKey(name)
		if key == "" {
			continue
		}
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("config: set %s: %w", key, err)
		}
	}
	return nil
}

// envKey turns AUTHFORMS_SERVER__ADDR into server.addr. Other variables are
// skipped.
func envKey(name string) string {
	if !strings.HasPrefix(name, envPrefix) {
		return ""
	}
	key := strings.ToLower(strings.TrimPrefix(name, envPrefix))
	return strings.ReplaceAll(key, "__", ".")
}
