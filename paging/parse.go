package paging

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAddress parses a decimal, 0x-hex, 0o-octal or 0b-binary address.
// Underscores between digits are accepted.
func ParseAddress(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidArgument, s)
	}

	return v, nil
}

// ParseLevel accepts a level number from 1 to 4 or a level name such as
// "pml4". The empty string and "auto" yield 0, which means the level is
// inferred.
func ParseLevel(s string) (Level, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == "AUTO" {
		return 0, nil
	}

	for l, name := range levelNames {
		if name == s {
			return l, nil
		}
	}

	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || !Level(n).Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}

	return Level(n), nil
}
