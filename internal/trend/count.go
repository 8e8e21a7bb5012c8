package trend

import (
	"math"
	"strconv"
	"strings"
)

// ParseCount decodes abbreviated play counts such as "1.2M", "850K", "3B" or
// "12,345". Anything unparseable yields 0.
func ParseCount(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, " VIDEOS")
	s = strings.TrimSuffix(s, " PLAYS")
	s = strings.TrimSuffix(s, " VIEWS")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	mult := 1.0
	switch s[len(s)-1] {
	case 'K':
		mult = 1e3
	case 'M':
		mult = 1e6
	case 'B':
		mult = 1e9
	}
	if mult != 1 {
		s = strings.TrimSpace(s[:len(s)-1])
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(math.Round(f * mult))
}
