package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/kjstillabower/agri-query-service/internal/models"
)

// ErrCoordinateEmpty is returned when a coordinate component is empty or whitespace-only.
var ErrCoordinateEmpty = errors.New("coordinate component is required")

// ErrCoordinateInvalidChars is returned when a coordinate component contains characters
// other than digits, '.', '+' and '-'.
var ErrCoordinateInvalidChars = errors.New("coordinate contains invalid characters")

// ErrCoordinateNotNumeric is returned when a coordinate component passes the character
// whitelist but is not a number (e.g. "1.2.3" or "--5").
var ErrCoordinateNotNumeric = errors.New("coordinate is not numeric")

// ErrQueryEmpty is returned when query text is empty after trimming.
var ErrQueryEmpty = errors.New("query text is required")

// ErrQueryTooLong is returned when query text exceeds the maximum length in runes.
var ErrQueryTooLong = errors.New("query text too long")

// ErrQueryInvalidChars is returned when query text contains control characters.
var ErrQueryInvalidChars = errors.New("query text contains control characters")

// maxCoordinateLen bounds textual coordinate components before parsing.
const maxCoordinateLen = 32

// ParseCoordinateText validates textual latitude/longitude fields and builds a Coordinate.
// Every failure is an InvalidCoordinate error that also wraps one of the sentinels above.
func ParseCoordinateText(lat, lon string) (models.Coordinate, error) {
	latV, err := ParseCoordinateComponent("latitude", lat)
	if err != nil {
		return models.Coordinate{}, err
	}
	lonV, err := ParseCoordinateComponent("longitude", lon)
	if err != nil {
		return models.Coordinate{}, err
	}
	return models.NewCoordinate(latV, lonV)
}

// ParseCoordinateComponent validates one textual coordinate component. name
// ("latitude" or "longitude") prefixes the error message. Range is not checked.
func ParseCoordinateComponent(name, input string) (float64, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, models.WrapError(models.KindInvalidCoordinate, name, ErrCoordinateEmpty)
	}
	if len(s) > maxCoordinateLen {
		return 0, models.WrapError(models.KindInvalidCoordinate, name, ErrCoordinateInvalidChars)
	}
	for _, c := range s {
		if !isAllowedCoordinateRune(c) {
			return 0, models.WrapError(models.KindInvalidCoordinate, name, ErrCoordinateInvalidChars)
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, models.WrapError(models.KindInvalidCoordinate, name, ErrCoordinateNotNumeric)
	}
	return v, nil
}

// isAllowedCoordinateRune returns true for ASCII digits, '.', '+' and '-'.
func isAllowedCoordinateRune(r rune) bool {
	if r >= '0' && r <= '9' {
		return true
	}
	switch r {
	case '.', '-', '+':
		return true
	}
	return false
}

// ValidateQueryText trims the input, enforces a maximum length in runes and rejects
// control characters other than newline and tab. Returns the trimmed string.
func ValidateQueryText(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrQueryEmpty
	}
	if maxLen > 0 && len([]rune(s)) > maxLen {
		return "", ErrQueryTooLong
	}
	for _, c := range s {
		if unicode.IsControl(c) && c != '\n' && c != '\t' {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

// ParseTimeWindow builds a TimeWindow from either a day count or an ISO date range and
// validates it against now. Supplying both forms is an InvalidRange error.
func ParseTimeWindow(days int, start, end string, now time.Time) (*models.TimeWindow, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	hasRange := start != "" || end != ""
	if days != 0 && hasRange {
		return nil, models.NewError(models.KindInvalidRange, "days and start/end are mutually exclusive")
	}
	w := &models.TimeWindow{Days: days}
	if hasRange {
		if start == "" || end == "" {
			return nil, models.NewError(models.KindInvalidRange, "start and end are both required for a date range")
		}
		s, err := time.Parse(models.DateLayout, start)
		if err != nil {
			return nil, models.WrapError(models.KindInvalidRange, fmt.Sprintf("start %q is not an ISO date", start), err)
		}
		e, err := time.Parse(models.DateLayout, end)
		if err != nil {
			return nil, models.WrapError(models.KindInvalidRange, fmt.Sprintf("end %q is not an ISO date", end), err)
		}
		w.Start, w.End = s, e
	}
	if err := w.Validate(now); err != nil {
		return nil, err
	}
	return w, nil
}
