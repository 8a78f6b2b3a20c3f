package config

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/c360/switchboard/errors"
)

// Safe type assertion helpers prevent panics when reading loosely typed sensor options

// GetString safely extracts a string value from an options map
func GetString(cfg map[string]any, key string, defaultVal string) string {
	if val, ok := cfg[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultVal
}

// HasKey checks if a key exists in the options map
func HasKey(cfg map[string]any, key string) bool {
	_, ok := cfg[key]
	return ok
}

// intOption accepts whole numbers only; yaml.v3 decodes "5" as int and "5.0" as float64.
func intOption(val any) (int, bool) {
	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		if v > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}

func invalidConfig(method string, problems []string) error {
	return errors.WrapFatal(
		fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
		"SensorsConfig", method, "validate sensor configuration")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
