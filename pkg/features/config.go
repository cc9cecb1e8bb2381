// Package features holds the registration feature toggles that decide which
// optional profile fields become mandatory.
package features

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Field names controlled by toggles.
const (
	Username   = "username"
	GivenName  = "given_name"
	MiddleName = "middle_name"
	Surname    = "surname"
)

const (
	flagEnabled  = "enabled"
	flagRequired = "required"
)

// ErrConfigurationMisuse reports a malformed toggle mapping. It is a
// programmer error and is never turned into a user-facing message.
var ErrConfigurationMisuse = errors.New("features: configuration misuse")

// Toggle describes a single optional field.
type Toggle struct {
	Enabled  bool `json:"enabled" koanf:"enabled"`
	Required bool `json:"required" koanf:"required"`
}

// Mandatory reports whether the field must be supplied.
func (t Toggle) Mandatory() bool {
	return t.Enabled && t.Required
}

// Config is a snapshot of the registration toggles.
type Config struct {
	Username   Toggle `json:"username" koanf:"username"`
	GivenName  Toggle `json:"given_name" koanf:"given_name"`
	MiddleName Toggle `json:"middle_name" koanf:"middle_name"`
	Surname    Toggle `json:"surname" koanf:"surname"`
}

// Fields lists the toggled field names in form order.
func Fields() []string {
	return []string{Username, GivenName, MiddleName, Surname}
}

// Toggle returns the toggle for a field name. A nil config reports every
// field as disabled.
func (c *Config) Toggle(field string) (Toggle, bool) {
	if c == nil {
		return Toggle{}, isKnown(field)
	}
	switch field {
	case Username:
		return c.Username, true
	case GivenName:
		return c.GivenName, true
	case MiddleName:
		return c.MiddleName, true
	case Surname:
		return c.Surname, true
	default:
		return Toggle{}, false
	}
}

// Requires reports whether field is both enabled and required.
func (c *Config) Requires(field string) bool {
	toggle, _ := c.Toggle(field)
	return toggle.Mandatory()
}

// Map renders the config as the nested mapping accepted by FromMap.
func (c *Config) Map() map[string]any {
	out := make(map[string]any, 4)
	for _, name := range Fields() {
		toggle, _ := c.Toggle(name)
		out[name] = map[string]any{
			flagEnabled:  toggle.Enabled,
			flagRequired: toggle.Required,
		}
	}
	return out
}

func (c *Config) set(field string, toggle Toggle) {
	switch field {
	case Username:
		c.Username = toggle
	case GivenName:
		c.GivenName = toggle
	case MiddleName:
		c.MiddleName = toggle
	case Surname:
		c.Surname = toggle
	}
}

// FromMap parses a toggle mapping. Both nested ({"username": {"enabled":
// true, "required": true}}) and dotted ({"username.enabled": true}) keys are
// accepted. A field that is absent stays disabled; a field that is present
// must define both flags. Values must be booleans or strings parseable as
// booleans. Anything else fails with ErrConfigurationMisuse.
func FromMap(raw map[string]any) (*Config, error) {
	cfg := &Config{}
	if raw == nil {
		return cfg, nil
	}

	grouped := make(map[string]map[string]any)
	for key, value := range raw {
		field, flag, dotted := strings.Cut(strings.TrimSpace(key), ".")
		if !isKnown(field) {
			return nil, fmt.Errorf("%w: unknown field %q", ErrConfigurationMisuse, key)
		}
		if grouped[field] == nil {
			grouped[field] = make(map[string]any, 2)
		}
		if dotted {
			grouped[field][flag] = value
			continue
		}
		nested, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q must be a mapping, got %T", ErrConfigurationMisuse, key, value)
		}
		for flag, v := range nested {
			grouped[field][flag] = v
		}
	}

	fields := make([]string, 0, len(grouped))
	for field := range grouped {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		toggle, err := parseToggle(field, grouped[field])
		if err != nil {
			return nil, err
		}
		cfg.set(field, toggle)
	}
	return cfg, nil
}

func parseToggle(field string, flags map[string]any) (Toggle, error) {
	for flag := range flags {
		if flag != flagEnabled && flag != flagRequired {
			return Toggle{}, fmt.Errorf("%w: unknown flag %q for %s", ErrConfigurationMisuse, flag, field)
		}
	}
	enabled, err := flagValue(field, flagEnabled, flags)
	if err != nil {
		return Toggle{}, err
	}
	required, err := flagValue(field, flagRequired, flags)
	if err != nil {
		return Toggle{}, err
	}
	return Toggle{Enabled: enabled, Required: required}, nil
}

func flagValue(field, flag string, flags map[string]any) (bool, error) {
	value, ok := flags[flag]
	if !ok {
		return false, fmt.Errorf("%w: missing %s.%s", ErrConfigurationMisuse, field, flag)
	}
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("%w: %s.%s is not a boolean: %q", ErrConfigurationMisuse, field, flag, v)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("%w: %s.%s is not a boolean: %T", ErrConfigurationMisuse, field, flag, value)
	}
}

func isKnown(field string) bool {
	switch field {
	case Username, GivenName, MiddleName, Surname:
		return true
	default:
		return false
	}
}
