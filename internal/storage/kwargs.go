package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Kwargs holds the provider options decoded from STORAGE_KWARGS.
type Kwargs map[string]any

// ParseKwargs decodes a JSON object. An empty string yields empty kwargs.
func ParseKwargs(raw string) (Kwargs, error) {
	kw := Kwargs{}
	if raw == "" {
		return kw, nil
	}
	if err := json.Unmarshal([]byte(raw), &kw); err != nil {
		return nil, fmt.Errorf("decode storage kwargs: %w", err)
	}
	return kw, nil
}

func (k Kwargs) String(key, fallback string) string {
	switch v := k[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fallback
}

// Bool accepts JSON booleans as well as "true"/"1"-style strings.
func (k Kwargs) Bool(key string, fallback bool) bool {
	switch v := k[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	case float64:
		return v != 0
	}
	return fallback
}

// Duration reads a number of seconds or a Go duration string such as "15m".
func (k Kwargs) Duration(key string, fallback time.Duration) time.Duration {
	switch v := k[key].(type) {
	case float64:
		if v > 0 {
			return time.Duration(v * float64(time.Second))
		}
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func (k Kwargs) require(keys ...string) error {
	for _, key := range keys {
		if k.String(key, "") == "" {
			return fmt.Errorf("missing required option %q", key)
		}
	}
	return nil
}
