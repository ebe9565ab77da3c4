package filter

import (
	"fmt"
	"strconv"
	"strings"
)

var sizeSuffixes = map[string]int64{
	"B": 1,
	"K": 1 << 10,
	"M": 1 << 20,
	"G": 1 << 30,
	"T": 1 << 40,
}

// ParseSize converts a human-readable size such as "512", "8k" or
// "1.5M" into bytes. Suffixes B/K/M/G/T are case-insensitive powers of
// 1024, the units rsync's bandwidth and size options speak.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	scale := int64(1)
	num := s
	if m, ok := sizeSuffixes[strings.ToUpper(s[len(s)-1:])]; ok {
		scale = m
		num = s[:len(s)-1]
	}
	if num == "" {
		return 0, fmt.Errorf("invalid size: %q", s)
	}

	// Integers stay exact; fractions like "1.5M" go through float.
	if n, err := strconv.ParseInt(num, 10, 64); err == nil {
		return n * scale, nil
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	return int64(f * float64(scale)), nil
}
