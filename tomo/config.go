package tomo

import (
	"fmt"
	"strconv"
	"strings"

	humanize "github.com/dustin/go-humanize"
)

// Config is a map of keyword to arbitrary data to specify configurations via keyword.
// Keys are case-insensitive.
type Config map[string]interface{}

// NewConfig returns an empty Config.
func NewConfig() Config {
	return make(Config)
}

// Set stores a value under a lowercased key.
func (c Config) Set(key string, value interface{}) {
	c[strings.ToLower(key)] = value
}

func (c Config) get(key string) (interface{}, bool) {
	if c == nil {
		return nil, false
	}
	v, found := c[strings.ToLower(key)]
	if !found {
		v, found = c[key]
	}
	return v, found
}

// GetString returns a string value for the key.
func (c Config) GetString(key string) (s string, found bool, err error) {
	v, found := c.get(key)
	if !found {
		return "", false, nil
	}
	switch t := v.(type) {
	case string:
		return t, true, nil
	case fmt.Stringer:
		return t.String(), true, nil
	default:
		return "", true, fmt.Errorf("setting %q is %T, not a string", key, v)
	}
}

// GetInt returns an integer value for the key, accepting numeric strings.
func (c Config) GetInt(key string) (i int, found bool, err error) {
	v, found := c.get(key)
	if !found {
		return 0, false, nil
	}
	switch t := v.(type) {
	case int:
		return t, true, nil
	case int64:
		return int(t), true, nil
	case int32:
		return int(t), true, nil
	case uint64:
		return int(t), true, nil
	case float64:
		return int(t), true, nil
	case string:
		i, err = strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, true, fmt.Errorf("setting %q (%q) is not an integer", key, t)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("setting %q is %T, not an integer", key, v)
	}
}

// GetFloat returns a floating point value for the key.
func (c Config) GetFloat(key string) (f float64, found bool, err error) {
	v, found := c.get(key)
	if !found {
		return 0, false, nil
	}
	switch t := v.(type) {
	case float64:
		return t, true, nil
	case float32:
		return float64(t), true, nil
	case int:
		return float64(t), true, nil
	case int64:
		return float64(t), true, nil
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, true, fmt.Errorf("setting %q (%q) is not a number", key, t)
		}
		return f, true, nil
	default:
		return 0, true, fmt.Errorf("setting %q is %T, not a number", key, v)
	}
}

// GetBool returns a boolean value for the key.
func (c Config) GetBool(key string) (b bool, found bool, err error) {
	v, found := c.get(key)
	if !found {
		return false, false, nil
	}
	switch t := v.(type) {
	case bool:
		return t, true, nil
	case string:
		b, err = strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, true, fmt.Errorf("setting %q (%q) is not a boolean", key, t)
		}
		return b, true, nil
	default:
		return false, true, fmt.Errorf("setting %q is %T, not a boolean", key, v)
	}
}

// GetStrings returns a list of strings, splitting a plain string on commas.
func (c Config) GetStrings(key string) (s []string, found bool, err error) {
	v, found := c.get(key)
	if !found {
		return nil, false, nil
	}
	switch t := v.(type) {
	case []string:
		return t, true, nil
	case []interface{}:
		for _, elem := range t {
			str, ok := elem.(string)
			if !ok {
				return nil, true, fmt.Errorf("setting %q has non-string element %v", key, elem)
			}
			s = append(s, str)
		}
		return s, true, nil
	case string:
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				s = append(s, part)
			}
		}
		return s, true, nil
	default:
		return nil, true, fmt.Errorf("setting %q is %T, not a list of strings", key, v)
	}
}

// GetBytes returns a byte size; strings like "64 MB" are parsed with humanize.
func (c Config) GetBytes(key string) (n uint64, found bool, err error) {
	v, found := c.get(key)
	if !found {
		return 0, false, nil
	}
	if s, ok := v.(string); ok {
		n, err = humanize.ParseBytes(s)
		if err != nil {
			return 0, true, fmt.Errorf("setting %q: %v", key, err)
		}
		return n, true, nil
	}
	i, _, err := c.GetInt(key)
	if err != nil {
		return 0, true, err
	}
	if i < 0 {
		return 0, true, fmt.Errorf("setting %q must not be negative", key)
	}
	return uint64(i), true, nil
}

// Duplicate returns a shallow copy.
func (c Config) Duplicate() Config {
	dup := make(Config, len(c))
	for k, v := range c {
		dup[k] = v
	}
	return dup
}
