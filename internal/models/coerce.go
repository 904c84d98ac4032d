package models

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"relmodels/internal/schema"
)

// серверный формат datetime, помимо RFC3339
const backendDateTime = "2006-01-02 15:04:05"

// coerceScalar приводит значение к объявленному типу поля. nil: "не задано".
// false от сервера означает "пусто" для всех типов, кроме bool.
func coerceScalar(f *schema.Scalar, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.(bool); ok && !b && f.Type != schema.TypeBool {
		return nil, nil
	}
	switch f.Type {
	case schema.TypeChar:
		return toStringStrict(v)
	case schema.TypeInt:
		return toIntStrict(v)
	case schema.TypeFloat:
		return toFloatStrict(v)
	case schema.TypeBool:
		return toBoolStrict(v)
	case schema.TypeDate:
		s, err := toStringStrict(v)
		if err != nil {
			return nil, err
		}
		if _, err := time.Parse(time.DateOnly, s); err != nil {
			return nil, errors.New("must match YYYY-MM-DD")
		}
		return s, nil
	case schema.TypeDateTime:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(time.RFC3339), nil
		}
		s, err := toStringStrict(v)
		if err != nil {
			return nil, err
		}
		if _, err := time.Parse(time.RFC3339, s); err == nil {
			return s, nil
		}
		if _, err := time.Parse(backendDateTime, s); err == nil {
			return s, nil
		}
		return nil, errors.New("must be RFC3339 or 'YYYY-MM-DD HH:MM:SS' datetime")
	default:
		// json/binary: как есть
		return v, nil
	}
}

func toStringStrict(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", errors.New("must be string")
}

func toIntStrict(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		// JSON числа приходят как float64: проверяем целостность
		if t != float64(int64(t)) {
			return 0, errors.New("must be integer")
		}
		return int64(t), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, errors.New("must be integer")
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, errors.New("must be integer")
		}
		return n, nil
	default:
		return 0, errors.New("must be integer")
	}
}

func toFloatStrict(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, errors.New("must be float")
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, errors.New("must be float")
		}
		return f, nil
	default:
		return 0, errors.New("must be float")
	}
}

func toBoolStrict(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y", "on":
			return true, nil
		case "false", "0", "no", "n", "off":
			return false, nil
		default:
			return false, errors.New("must be boolean")
		}
	default:
		return false, errors.New("must be boolean")
	}
}
