package render

import (
	"strings"

	"github.com/goliatone/go-authforms/pkg/model"
)

// ErrorMapping splits an error payload into field-level and form-level
// messages.
type ErrorMapping struct {
	Fields map[string][]string
	Form   []string
}

// ErrorMapper maps backend error paths onto form field names.
type ErrorMapper struct {
	// Aliases renames backend keys before matching (for example
	// "identifier" -> "login").
	Aliases map[string]string
}

// MapErrorPayload maps payload with a zero ErrorMapper.
func MapErrorPayload(form model.FormModel, payload map[string][]string) ErrorMapping {
	return ErrorMapper{}.Map(form, payload)
}

// Map normalises payload keys (JSON pointers, dotted paths, wrapper
// segments such as "body" or "traits") into declared field names. Keys that
// do not resolve to a field become form-level messages so nothing is lost.
func (m ErrorMapper) Map(form model.FormModel, payload map[string][]string) ErrorMapping {
	mapping := ErrorMapping{}
	if len(payload) == 0 {
		return mapping
	}

	declared := make(map[string]struct{}, len(form.Fields))
	for _, field := range form.Fields {
		declared[field.Name] = struct{}{}
	}

	for _, key := range sortedKeys(payload) {
		messages := normalizeMessages(payload[key])
		if len(messages) == 0 {
			continue
		}
		name, ok := m.resolve(key, declared)
		if !ok {
			mapping.Form = append(mapping.Form, messages...)
			continue
		}
		if mapping.Fields == nil {
			mapping.Fields = make(map[string][]string)
		}
		mapping.Fields[name] = normalizeMessages(append(mapping.Fields[name], messages...))
	}

	mapping.Form = normalizeMessages(mapping.Form)
	return mapping
}

// MergeFormErrors concatenates form-level messages, trimming whitespace and
// dropping duplicates while preserving order.
func MergeFormErrors(existing []string, extras ...string) []string {
	combined := make([]string, 0, len(existing)+len(extras))
	combined = append(combined, existing...)
	combined = append(combined, extras...)
	return normalizeMessages(combined)
}

func (m ErrorMapper) resolve(key string, declared map[string]struct{}) (string, bool) {
	if isFormLevelKey(key) {
		return "", false
	}
	segments := dropWrapperSegments(splitPath(key))
	if len(segments) == 0 {
		return "", false
	}
	for _, candidate := range []string{segments[0], strings.Join(segments, ".")} {
		if alias, ok := m.Aliases[candidate]; ok {
			candidate = alias
		}
		if _, ok := declared[candidate]; ok {
			return candidate, true
		}
	}
	return "", false
}

func splitPath(path string) []string {
	clean := strings.TrimSpace(path)
	clean = strings.TrimLeft(clean, "#$/.")
	clean = strings.NewReplacer("[", ".", "]", "").Replace(clean)

	parts := strings.FieldsFunc(clean, func(r rune) bool {
		return r == '.' || r == '/'
	})
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		part = strings.ReplaceAll(part, "~1", "/")
		part = strings.ReplaceAll(part, "~0", "~")
		out = append(out, part)
	}
	return out
}

func dropWrapperSegments(segments []string) []string {
	for len(segments) > 0 {
		switch strings.ToLower(segments[0]) {
		case "body", "request", "payload", "data", "attributes", "traits":
			segments = segments[1:]
			continue
		}
		break
	}
	return segments
}

func isFormLevelKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "", ".", "/", "#", "$", "form", "__all__", "non_field_errors":
		return true
	default:
		return false
	}
}

func normalizeMessages(messages []string) []string {
	if len(messages) == 0 {
		return nil
	}
	out := make([]string, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	for _, message := range messages {
		trimmed := strings.TrimSpace(message)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
