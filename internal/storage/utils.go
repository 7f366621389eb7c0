package storage

import (
	"fmt"
	"strconv"
)

// ParseID converts a path or CLI argument into a row ID.
// Zero is rejected because gorm treats it as "no primary key".
func ParseID(s string) (uint, error) {
	val, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	if val == 0 {
		return 0, fmt.Errorf("invalid id %q: must be positive", s)
	}
	return uint(val), nil
}
