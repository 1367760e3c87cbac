// Package environment reads deployment configuration from environment
// variables.  The engine is configured entirely this way (catalog path,
// database path, webhook endpoint, classifier credentials), so every helper
// follows the same shape: read one variable, fall back to a default when it
// is unset or unparsable.  Only RequiredString can fail, and it returns an
// error instead of exiting so main decides how to report it.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// String returns the value of the named variable and whether it was set at
// all (a variable set to the empty string still counts as set).
func String(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	return v, ok
}

// StringOr returns the named variable's value, or defaultValue when it is
// unset or empty.
func StringOr(name, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultValue
}

// RequiredString returns the named variable's value, or an error when it is
// unset or empty.
func RequiredString(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("required environment variable %q is not set", name)
	}
	return v, nil
}

// BoolOr parses the named variable with strconv.ParseBool ("1", "t", "true",
// "0", "f", "false", ...).  Unset, empty or unparsable values yield
// defaultValue.
func BoolOr(name string, defaultValue bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

// IntOr parses the named variable as a decimal integer.  Unset, empty or
// unparsable values yield defaultValue.
func IntOr(name string, defaultValue int) int {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

// DurationOr parses the named variable as a time.Duration ("30s", "5m",
// "1h").  Unset, empty or unparsable values yield defaultValue.
func DurationOr(name string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

// StringSliceOr parses the named variable as a comma-separated list, trimming
// whitespace around each element and dropping empties.  Unset or empty
// values (including a list of only empty elements) yield defaultValue.
func StringSliceOr(name string, defaultValue []string) []string {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			result = append(result, t)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
