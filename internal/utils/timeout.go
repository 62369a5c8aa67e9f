package utils

import (
	"fmt"
	"time"
)

// ParseTimeoutWithDefault parses a duration string from config, falling back
// to the given default when the value is empty. The field name is only used
// for error messages.
func ParseTimeoutWithDefault(value, field string, defaultValue time.Duration) (time.Duration, error) {
	if value == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout value for %s: %v", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout value for %s cannot be negative", field)
	}

	return d, nil
}
