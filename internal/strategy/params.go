package strategy

import (
	"fmt"
	"strconv"

	"github.com/newthinker/quantguard/internal/core"
)

// Int reads an integer parameter, falling back to def when absent
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, paramError(key, v)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, paramError(key, v)
		}
		return i, nil
	}
	return 0, paramError(key, v)
}

// Float reads a float parameter, falling back to def when absent
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, paramError(key, v)
		}
		return f, nil
	}
	return 0, paramError(key, v)
}

// Bool reads a boolean parameter, falling back to def when absent
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, paramError(key, v)
		}
		return parsed, nil
	}
	return false, paramError(key, v)
}

func paramError(key string, v any) error {
	return core.WrapError(core.ErrInvalidInput, fmt.Errorf("parameter %q: unsupported value %v", key, v))
}
