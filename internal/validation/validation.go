package validation

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Location query failures, reported as 400 INVALID_INPUT.
var (
	ErrLocationEmpty        = errors.New("location is required")
	ErrLocationTooShort     = errors.New("location too short")
	ErrLocationTooLong      = errors.New("location too long")
	ErrLocationInvalidChars = errors.New("location contains invalid characters")
)

// ValidateLocation cleans a city name or "lat,lon" query before it is sent
// upstream or used as a cache key. Runs of whitespace collapse to a single
// space. Bounds are counted in runes; a bound of zero is not enforced.
//
// Accepted runes are letters, digits, space, comma, hyphen, period and
// apostrophe ("Santa Bárbara d'Oeste", "-23.55,-46.63").
func ValidateLocation(input string, minLen, maxLen int) (string, error) {
	s := strings.Join(strings.Fields(input), " ")
	if s == "" {
		return "", ErrLocationEmpty
	}
	if strings.IndexFunc(s, rejectedLocationRune) >= 0 {
		return "", ErrLocationInvalidChars
	}
	switch n := utf8.RuneCountInString(s); {
	case minLen > 0 && n < minLen:
		return "", ErrLocationTooShort
	case maxLen > 0 && n > maxLen:
		return "", ErrLocationTooLong
	}
	return s, nil
}

func rejectedLocationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return false
	}
	return !strings.ContainsRune(" ,-.'", r)
}
