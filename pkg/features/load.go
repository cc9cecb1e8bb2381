package features

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load reads the toggles stored under path in k. An empty path reads the
// root. A missing path yields a disabled config.
func Load(k *koanf.Koanf, path string) (*Config, error) {
	if k == nil {
		return &Config{}, nil
	}
	sub := k
	if path != "" {
		if !k.Exists(path) {
			return &Config{}, nil
		}
		sub = k.Cut(path)
	}
	return FromMap(sub.Raw())
}

// LoadFile reads toggles from a YAML document.
func LoadFile(filename, path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(filename), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("features: load %s: %w", filename, err)
	}
	return Load(k, path)
}

// SetDefaults seeds disabled toggles under path so later providers only need
// to override the flags they care about.
func SetDefaults(k *koanf.Koanf, path string) error {
	for _, field := range Fields() {
		for _, flag := range []string{flagEnabled, flagRequired} {
			key := field + "." + flag
			if path != "" {
				key = path + "." + key
			}
			if err := k.Set(key, false); err != nil {
				return fmt.Errorf("features: set default %s: %w", key, err)
			}
		}
	}
	return nil
}
