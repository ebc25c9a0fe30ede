package utils

import (
	"os"
	"strings"
)

// EnvOr returns the value of the named environment variable, or fallback when
// the variable is unset or blank. Surrounding whitespace is trimmed so a
// quoted "  " in an .env file does not masquerade as a real value.
func EnvOr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}
