package validation

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/agri-query-service/internal/models"
)

func TestParseCoordinateText_Valid(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon string
		wantLat  float64
		wantLon  float64
	}{
		{"integers", "39", "32", 39, 32},
		{"decimals", "39.925", "32.837", 39.925, 32.837},
		{"negative", "-33.9", "-70.6", -33.9, -70.6},
		{"explicit plus", "+10.5", "+20", 10.5, 20},
		{"surrounding spaces", "  39.0 ", " 32.0", 39, 32},
		{"bounds", "-90", "180", -90, 180},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := ParseCoordinateText(tc.lat, tc.lon)
			if err != nil {
				t.Fatalf("ParseCoordinateText(%q, %q) error = %v, want nil", tc.lat, tc.lon, err)
			}
			if c.Latitude() != tc.wantLat || c.Longitude() != tc.wantLon {
				t.Errorf("ParseCoordinateText() = (%v, %v), want (%v, %v)", c.Latitude(), c.Longitude(), tc.wantLat, tc.wantLon)
			}
		})
	}
}

// TestParseCoordinateText_Invalid verifies that malformed or injection-unsafe input is rejected
// as InvalidCoordinate with the specific sentinel attached.
func TestParseCoordinateText_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon string
		sentinel error
	}{
		{"empty latitude", "", "32", ErrCoordinateEmpty},
		{"whitespace longitude", "39", "   ", ErrCoordinateEmpty},
		{"sql injection", "39; DROP TABLE soil", "32", ErrCoordinateInvalidChars},
		{"quote", "39'", "32", ErrCoordinateInvalidChars},
		{"exponent", "3.9e1", "32", ErrCoordinateInvalidChars},
		{"letters", "north", "32", ErrCoordinateInvalidChars},
		{"double dot", "39.0.1", "32", ErrCoordinateNotNumeric},
		{"double sign", "--39", "32", ErrCoordinateNotNumeric},
		{"too long", strings.Repeat("1", 40), "32", ErrCoordinateInvalidChars},
		{"out of range", "200", "32", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCoordinateText(tc.lat, tc.lon)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, models.ErrInvalidCoordinate) {
				t.Errorf("error = %v, want InvalidCoordinate", err)
			}
			if tc.sentinel != nil && !errors.Is(err, tc.sentinel) {
				t.Errorf("error = %v, want %v", err, tc.sentinel)
			}
		})
	}
}

func TestValidateQueryText(t *testing.T) {
	got, err := ValidateQueryText("  when should I plant wheat?  ", 100)
	if err != nil {
		t.Fatalf("ValidateQueryText() error = %v, want nil", err)
	}
	if got != "when should I plant wheat?" {
		t.Errorf("ValidateQueryText() = %q, want trimmed", got)
	}
	if _, err := ValidateQueryText("   ", 100); !errors.Is(err, ErrQueryEmpty) {
		t.Errorf("error = %v, want ErrQueryEmpty", err)
	}
	if _, err := ValidateQueryText(strings.Repeat("ç", 11), 10); !errors.Is(err, ErrQueryTooLong) {
		t.Errorf("error = %v, want ErrQueryTooLong", err)
	}
	if _, err := ValidateQueryText("bad\x00query", 100); !errors.Is(err, ErrQueryInvalidChars) {
		t.Errorf("error = %v, want ErrQueryInvalidChars", err)
	}
}

func TestParseTimeWindow(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		days       int
		start, end string
		wantErr    bool
	}{
		{"days", 3, "", "", false},
		{"range", 0, "2026-10-01", "2026-10-05", false},
		{"both forms", 3, "2026-10-01", "2026-10-05", true},
		{"half range", 0, "2026-10-01", "", true},
		{"bad date", 0, "2026/10/01", "2026-10-05", true},
		{"too many days", 20, "", "", true},
		{"reversed", 0, "2026-10-05", "2026-10-01", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, err := ParseTimeWindow(tc.days, tc.start, tc.end, now)
			if tc.wantErr {
				if !errors.Is(err, models.ErrInvalidRange) {
					t.Fatalf("ParseTimeWindow() error = %v, want InvalidRange", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimeWindow() error = %v, want nil", err)
			}
			if w == nil {
				t.Fatal("ParseTimeWindow() returned nil window")
			}
		})
	}
}

type structFixture struct {
	Capabilities []string `json:"capabilities" validate:"required,min=1,dive,capability"`
	Inner        *struct {
		Days int `json:"days" validate:"omitempty,min=1,max=16"`
	} `json:"time_window" validate:"omitempty"`
}

// TestStruct verifies that validation failures report JSON field paths.
func TestStruct(t *testing.T) {
	ok := structFixture{Capabilities: []string{"soil", "weather"}}
	if err := Struct(ok); err != nil {
		t.Fatalf("Struct(valid) error = %v, want nil", err)
	}

	bad := structFixture{Capabilities: []string{"soil", "astrology"}}
	err := Struct(bad)
	var fe *FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("Struct(unknown capability) error = %v, want *FieldError", err)
	}
	if fe.Path != "capabilities[1]" || fe.Tag != "capability" {
		t.Errorf("FieldError = %+v, want path capabilities[1] tag capability", fe)
	}

	window := structFixture{Capabilities: []string{"weather"}}
	window.Inner = &struct {
		Days int `json:"days" validate:"omitempty,min=1,max=16"`
	}{Days: 30}
	err = Struct(window)
	if !errors.As(err, &fe) || fe.Path != "time_window.days" {
		t.Errorf("Struct(days=30) error = %v, want time_window.days failure", err)
	}
}
