package ingest

import (
	"testing"
)

func TestTrackFromPath(t *testing.T) {
	trackFromPathTests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bare name",
			input:    "ks_monza",
			expected: "ks_monza",
		},
		{
			name:     "track and layout",
			input:    "ks_nordschleife/touristenfahrten",
			expected: "ks_nordschleife-touristenfahrten",
		},
		{
			name:     "csp prefix path",
			input:    "csp/0/../ks_nordschleife/touristenfahrten",
			expected: "ks_nordschleife-touristenfahrten",
		},
		{
			name:     "backslash separators",
			input:    `csp\0\..\ks_brands_hatch\gp`,
			expected: "ks_brands_hatch-gp",
		},
		{
			name:     "trailing file name dropped",
			input:    "ks_brands_hatch/drs_zones.ini",
			expected: "ks_brands_hatch",
		},
		{
			name:     "url encoded",
			input:    "ks_nordschleife%2Ftouristenfahrten",
			expected: "ks_nordschleife-touristenfahrten",
		},
		{
			name:     "noise only",
			input:    "csp/0/..",
			expected: "",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
	}

	for _, test := range trackFromPathTests {
		t.Run(test.name, func(t *testing.T) {
			if parsed := trackFromPath(test.input); parsed != test.expected {
				t.Errorf("trackFromPath(%q) = %q, expected %q", test.input, parsed, test.expected)
			}
		})
	}
}

func TestNormalizeTrack(t *testing.T) {
	normalizeTrackTests := []struct {
		name     string
		track    string
		layout   string
		expected string
	}{
		{
			name:     "track with embedded layout wins",
			track:    "ks_nordschleife/touristenfahrten",
			layout:   "endurance",
			expected: "ks_nordschleife-touristenfahrten",
		},
		{
			name:     "layout candidate with embedded layout",
			track:    "",
			layout:   "ks_vallelunga/club",
			expected: "ks_vallelunga-club",
		},
		{
			name:     "plain track preferred over plain layout",
			track:    "ks_monza",
			layout:   "monza66",
			expected: "ks_monza",
		},
		{
			name:     "layout only",
			track:    "",
			layout:   "gp",
			expected: "gp",
		},
		{
			name:     "nothing",
			track:    "",
			layout:   "",
			expected: "",
		},
	}

	for _, test := range normalizeTrackTests {
		t.Run(test.name, func(t *testing.T) {
			if normalized := normalizeTrack(test.track, test.layout); normalized != test.expected {
				t.Errorf("normalizeTrack(%q, %q) = %q, expected %q", test.track, test.layout, normalized, test.expected)
			}
		})
	}
}
