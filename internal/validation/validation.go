package validation

import (
	"errors"
	"math"
	"strings"
	"time"
	"unicode"
)

// ErrLatitudeOutOfRange is returned when latitude is outside [-90, 90] or not finite.
var ErrLatitudeOutOfRange = errors.New("latitude out of range")

// ErrLongitudeOutOfRange is returned when longitude is outside [-180, 180] or not finite.
var ErrLongitudeOutOfRange = errors.New("longitude out of range")

// ErrInvalidDate is returned when a date string is not a valid YYYY-MM-DD calendar date.
var ErrInvalidDate = errors.New("invalid date")

// ErrProvinceEmpty is returned when a province name is empty or whitespace-only after trim.
var ErrProvinceEmpty = errors.New("province is required")

// ErrProvinceTooLong is returned when a province name exceeds the maximum length.
var ErrProvinceTooLong = errors.New("province too long")

// ErrProvinceInvalidChars is returned when a province name contains disallowed characters.
var ErrProvinceInvalidChars = errors.New("province contains invalid characters")

const maxProvinceLen = 64

// ValidateCoordinates checks that lat/lon form a real point on the globe.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return ErrLatitudeOutOfRange
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return ErrLongitudeOutOfRange
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD query date.
func ParseDate(input string) (time.Time, error) {
	s := strings.TrimSpace(input)
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// ValidateProvince trims the input, enforces a length bound, and restricts
// to characters that occur in English province names: letters (Unicode),
// space, hyphen, period. Returns the trimmed string.
func ValidateProvince(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrProvinceEmpty
	}
	if len(r) > maxProvinceLen {
		return "", ErrProvinceTooLong
	}
	for _, c := range r {
		if !isAllowedProvinceRune(c) {
			return "", ErrProvinceInvalidChars
		}
	}
	return s, nil
}

func isAllowedProvinceRune(r rune) bool {
	if unicode.IsLetter(r) {
		return true
	}
	switch r {
	case ' ', '-', '.':
		return true
	}
	return false
}
