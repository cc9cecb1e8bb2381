package orchestrator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	theme "github.com/goliatone/go-theme"
)

// ManifestSelector resolves themes from an in-memory set of manifests.
type ManifestSelector struct {
	manifests      map[string]*theme.Manifest
	defaultTheme   string
	defaultVariant string
}

var _ theme.ThemeSelector = (*ManifestSelector)(nil)

// NewManifestSelector indexes manifests by name. defaultTheme must name one
// of them when it is set.
func NewManifestSelector(defaultTheme, defaultVariant string, manifests ...*theme.Manifest) (*ManifestSelector, error) {
	s := &ManifestSelector{
		manifests:      make(map[string]*theme.Manifest, len(manifests)),
		defaultTheme:   strings.TrimSpace(defaultTheme),
		defaultVariant: strings.TrimSpace(defaultVariant),
	}
	for _, manifest := range manifests {
		if manifest == nil || strings.TrimSpace(manifest.Name) == "" {
			return nil, errors.New("manifest name is required")
		}
		if _, exists := s.manifests[manifest.Name]; exists {
			return nil, fmt.Errorf("manifest %q registered twice", manifest.Name)
		}
		s.manifests[manifest.Name] = manifest
	}
	if s.defaultTheme != "" {
		if _, ok := s.manifests[s.defaultTheme]; !ok {
			return nil, fmt.Errorf("default theme %q not found", s.defaultTheme)
		}
	}
	return s, nil
}

// Names lists the known themes.
func (s *ManifestSelector) Names() []string {
	names := make([]string, 0, len(s.manifests))
	for name := range s.manifests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the manifest for name and variant. Empty values fall back to
// the defaults; an unknown variant is an error.
func (s *ManifestSelector) Select(name, variant string, _ ...theme.QueryOption) (*theme.Selection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = s.defaultTheme
	}
	variant = strings.TrimSpace(variant)
	if variant == "" && name == s.defaultTheme {
		variant = s.defaultVariant
	}
	if name == "" {
		return nil, nil
	}

	manifest, ok := s.manifests[name]
	if !ok {
		return nil, fmt.Errorf("theme %q not found", name)
	}
	if variant != "" {
		if _, ok := manifest.Variants[variant]; !ok {
			return nil, fmt.Errorf("theme %q has no variant %q", name, variant)
		}
	}
	return &theme.Selection{Theme: name, Variant: variant, Manifest: manifest}, nil
}

func (o *Orchestrator) resolveTheme(name, variant string) (*theme.RendererConfig, error) {
	if o.themeSelector == nil {
		return nil, nil
	}
	selection, err := o.themeSelector.Select(name, variant)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: select theme: %w", err)
	}
	if selection == nil {
		return nil, nil
	}
	return rendererConfig(selection, o.themeFallbacks), nil
}

// rendererConfig flattens a selection into the renderer view: variant
// tokens, templates and asset files override the base manifest, and
// fallbacks fill partials the theme leaves unset.
func rendererConfig(selection *theme.Selection, fallbacks map[string]string) *theme.RendererConfig {
	cfg := &theme.RendererConfig{
		Theme:    selection.Theme,
		Variant:  selection.Variant,
		Tokens:   map[string]string{},
		CSSVars:  map[string]string{},
		Partials: copyStringMap(fallbacks),
	}
	if cfg.Partials == nil {
		cfg.Partials = map[string]string{}
	}

	files := map[string]string{}
	prefix := ""
	if manifest := selection.Manifest; manifest != nil {
		mergeInto(cfg.Tokens, manifest.Tokens)
		mergeInto(cfg.Partials, manifest.Templates)
		mergeInto(files, manifest.Assets.Files)
		prefix = manifest.Assets.Prefix

		if v, ok := manifest.Variants[selection.Variant]; ok && selection.Variant != "" {
			mergeInto(cfg.Tokens, v.Tokens)
			mergeInto(cfg.Partials, v.Templates)
			mergeInto(files, v.Assets.Files)
			if v.Assets.Prefix != "" {
				prefix = v.Assets.Prefix
			}
		}
	}

	for key, value := range cfg.Tokens {
		cfg.CSSVars["--"+key] = value
	}
	cfg.AssetURL = assetResolver(prefix, files)
	return cfg
}

func assetResolver(prefix string, files map[string]string) func(string) string {
	prefix = strings.TrimRight(prefix, "/")
	return func(key string) string {
		file, ok := files[key]
		if !ok || file == "" {
			return ""
		}
		if strings.HasPrefix(file, "/") || strings.Contains(file, "://") || prefix == "" {
			return file
		}
		return prefix + "/" + strings.TrimLeft(file, "/")
	}
}

func mergeInto(dst, src map[string]string) {
	for key, value := range src {
		dst[key] = value
	}
}

func copyStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
