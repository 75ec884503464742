// Package charset describes the character-set restriction applied to OCR
// results: either one of the predefined ranges or a literal alphabet.
package charset

import (
	"fmt"
	"strings"
)

// Range is a predefined character class.
type Range int

const (
	None Range = iota
	Number
	Lower
	Upper
	LowerUpper
	NumberLower
	NumberUpper
	NumberLowerUpper
	NotNumberLowerUpper
)

var rangeNames = map[Range]string{
	Number:              "number",
	Lower:               "lower",
	Upper:               "upper",
	LowerUpper:          "lower_upper",
	NumberLower:         "number_lower",
	NumberUpper:         "number_upper",
	NumberLowerUpper:    "number_lower_upper",
	NotNumberLowerUpper: "not_number_lower_upper",
}

func (r Range) String() string {
	if n, ok := rangeNames[r]; ok {
		return n
	}
	if r == None {
		return "none"
	}
	return fmt.Sprintf("range(%d)", int(r))
}

// Set is a restriction on recognised characters. The zero value means no
// restriction. Set is comparable and can be used inside map keys.
type Set struct {
	Range  Range
	Custom string
}

// FromRange returns a Set restricted to r.
func FromRange(r Range) Set { return Set{Range: r} }

// Custom returns a Set restricted to the runes of alphabet.
func Custom(alphabet string) Set { return Set{Custom: alphabet} }

// Parse accepts a range name (case-insensitive, "-" and "_" interchangeable)
// or, failing that, treats s as a literal alphabet. An empty string yields the
// zero Set.
func Parse(s string) (Set, error) {
	if s == "" {
		return Set{}, nil
	}
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if norm == "none" {
		return Set{}, nil
	}
	for r, name := range rangeNames {
		if name == norm {
			return FromRange(r), nil
		}
	}
	if strings.TrimSpace(s) == "" {
		return Set{}, fmt.Errorf("charset %q is blank", s)
	}
	return Custom(s), nil
}

// IsZero reports whether s imposes no restriction.
func (s Set) IsZero() bool { return s.Range == None && s.Custom == "" }

func (s Set) String() string {
	if s.Custom != "" {
		return s.Custom
	}
	if s.Range == None {
		return ""
	}
	return s.Range.String()
}

// Allows reports whether c may appear in a restricted result.
func (s Set) Allows(c rune) bool {
	if s.Custom != "" {
		return strings.ContainsRune(s.Custom, c)
	}
	digit := c >= '0' && c <= '9'
	lower := c >= 'a' && c <= 'z'
	upper := c >= 'A' && c <= 'Z'
	switch s.Range {
	case None:
		return true
	case Number:
		return digit
	case Lower:
		return lower
	case Upper:
		return upper
	case LowerUpper:
		return lower || upper
	case NumberLower:
		return digit || lower
	case NumberUpper:
		return digit || upper
	case NumberLowerUpper:
		return digit || lower || upper
	case NotNumberLowerUpper:
		return !(digit || lower || upper)
	default:
		return true
	}
}

// AllowsString reports whether every rune of s is allowed.
func (s Set) AllowsString(str string) bool {
	for _, c := range str {
		if !s.Allows(c) {
			return false
		}
	}
	return true
}

// Filter drops the runes of str that s does not allow.
func (s Set) Filter(str string) string {
	if s.IsZero() {
		return str
	}
	var b strings.Builder
	for _, c := range str {
		if s.Allows(c) {
			b.WriteRune(c)
		}
	}
	return b.String()
}

const (
	digits = "0123456789"
	lowers = "abcdefghijklmnopqrstuvwxyz"
	uppers = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Whitelist returns the explicit alphabet of s, or "" when s is unrestricted
// or only expressible as an exclusion (see Blacklist).
func (s Set) Whitelist() string {
	if s.Custom != "" {
		return s.Custom
	}
	switch s.Range {
	case Number:
		return digits
	case Lower:
		return lowers
	case Upper:
		return uppers
	case LowerUpper:
		return lowers + uppers
	case NumberLower:
		return digits + lowers
	case NumberUpper:
		return digits + uppers
	case NumberLowerUpper:
		return digits + lowers + uppers
	}
	return ""
}

// Blacklist returns the excluded alphabet for exclusion ranges.
func (s Set) Blacklist() string {
	if s.Custom == "" && s.Range == NotNumberLowerUpper {
		return digits + lowers + uppers
	}
	return ""
}

// RangeNames lists the accepted range names in declaration order.
func RangeNames() []string {
	names := make([]string, 0, len(rangeNames))
	for r := Number; r <= NotNumberLowerUpper; r++ {
		names = append(names, rangeNames[r])
	}
	return names
}
