package render

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// CatalogTranslator is a Translator backed by an x/text message catalog.
// Locales are matched against the registered languages the way an
// Accept-Language header is, falling back to the default tag.
type CatalogTranslator struct {
	mu       sync.RWMutex
	builder  *catalog.Builder
	fallback language.Tag
	tags     []language.Tag
	keys     map[language.Tag]map[string]struct{}
	matcher  language.Matcher
}

// NewCatalogTranslator creates an empty translator whose default language is
// fallback.
func NewCatalogTranslator(fallback language.Tag) *CatalogTranslator {
	return &CatalogTranslator{
		builder:  catalog.NewBuilder(catalog.Fallback(fallback)),
		fallback: fallback,
		tags:     []language.Tag{fallback},
		keys:     map[language.Tag]map[string]struct{}{fallback: {}},
	}
}

// Add registers messages (key -> translation) for tag.
func (c *CatalogTranslator) Add(tag language.Tag, messages map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, known := c.keys[tag]; !known {
		c.keys[tag] = make(map[string]struct{}, len(messages))
		c.tags = append(c.tags, tag)
	}
	for _, key := range sortedKeys(messages) {
		if err := c.builder.SetString(tag, key, messages[key]); err != nil {
			return fmt.Errorf("render: catalog %s %q: %w", tag, key, err)
		}
		c.keys[tag][key] = struct{}{}
	}
	c.matcher = nil
	return nil
}

// Languages lists the registered tags, default first.
func (c *CatalogTranslator) Languages() []language.Tag {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]language.Tag(nil), c.tags...)
}

// Match picks the best registered language for an Accept-Language header or
// a single BCP 47 tag.
func (c *CatalogTranslator) Match(accept string) language.Tag {
	accept = strings.TrimSpace(accept)
	if accept == "" {
		return c.fallback
	}
	desired, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(desired) == 0 {
		return c.fallback
	}

	c.mu.Lock()
	if c.matcher == nil {
		c.matcher = language.NewMatcher(c.tags)
	}
	matcher, tags := c.matcher, c.tags
	c.mu.Unlock()

	_, index, confidence := matcher.Match(desired...)
	if confidence == language.No || index < 0 || index >= len(tags) {
		return c.fallback
	}
	return tags[index]
}

// Translate implements Translator. Keys without a message for the matched
// language return ErrMissingTranslation.
func (c *CatalogTranslator) Translate(locale, key string, args ...any) (string, error) {
	tag := c.Match(locale)

	c.mu.RLock()
	_, ok := c.keys[tag][key]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s %q", ErrMissingTranslation, tag, key)
	}

	printer := message.NewPrinter(tag, message.Catalog(c.builder))
	return printer.Sprintf(key, args...), nil
}

// LoadYAML registers messages from a YAML document keyed by language tag:
//
//	es:
//	  "Password required.": "Contraseña obligatoria."
func (c *CatalogTranslator) LoadYAML(data []byte) error {
	var doc map[string]map[string]string
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("render: parse catalog: %w", err)
	}
	for _, raw := range sortedKeys(doc) {
		tag, err := language.Parse(raw)
		if err != nil {
			return fmt.Errorf("render: catalog language %q: %w", raw, err)
		}
		if err := c.Add(tag, doc[raw]); err != nil {
			return err
		}
	}
	return nil
}

//go:embed locales/*.yaml
var embeddedLocales embed.FS

// DefaultTranslator returns an English-default translator loaded with the
// bundled catalogs.
func DefaultTranslator() (*CatalogTranslator, error) {
	t := NewCatalogTranslator(language.English)
	entries, err := fs.ReadDir(embeddedLocales, "locales")
	if err != nil {
		return nil, fmt.Errorf("render: read locales: %w", err)
	}
	for _, entry := range entries {
		data, err := fs.ReadFile(embeddedLocales, path.Join("locales", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("render: read %s: %w", entry.Name(), err)
		}
		if err := t.LoadYAML(data); err != nil {
			return nil, fmt.Errorf("render: load %s: %w", entry.Name(), err)
		}
	}
	return t, nil
}
