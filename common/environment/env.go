// Package environment reads process configuration from environment
// variables. Every helper returns the caller's default when the variable
// is unset or unparseable; only RequiredString can fail, and it returns
// an error instead of exiting so main decides how to die.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// StringOr returns the variable's value, or defaultValue when unset or
// empty.
func StringOr(name, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultValue
}

// RequiredString returns the variable's value, or an error when it is
// unset or empty.
func RequiredString(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("required environment variable %q is not set", name)
	}
	return v, nil
}

// BoolOr parses the variable with strconv.ParseBool. Unset, empty, or
// unparseable values yield defaultValue.
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

// IntOr parses the variable as a decimal integer. Unset, empty, or
// unparseable values yield defaultValue.
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

// DurationOr parses the variable with time.ParseDuration ("30s", "5m").
// Unset, empty, or unparseable values yield defaultValue.
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
