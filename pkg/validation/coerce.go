package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-authforms/pkg/model"
)

// ErrCoerce reports a value that cannot be represented as the field kind.
var ErrCoerce = errors.New("validation: cannot coerce value")

// Coerce converts a raw submitted value into the Go type of kind: string for
// text, secret and hidden fields and bool for boolean fields. Missing values
// coerce to the zero value.
func Coerce(kind model.FieldKind, raw any) (any, error) {
	if kind == model.FieldKindBoolean {
		return coerceBool(raw)
	}
	return coerceString(raw)
}

func coerceString(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []string:
		if len(v) == 0 {
			return "", nil
		}
		return v[0], nil
	case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return fmt.Sprint(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("%w: %T as string", ErrCoerce, raw)
	}
}

func coerceBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		return truthy(v), nil
	case []string:
		if len(v) == 0 {
			return false, nil
		}
		return truthy(v[0]), nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("%w: %T as bool", ErrCoerce, raw)
	}
}

// truthy follows checkbox semantics: any submitted value other than the
// explicit false spellings counts as checked.
func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "0", "off", "n", "no":
		return false
	default:
		return true
	}
}
