package ingest

import (
	"net/url"
	"strings"
)

// Tokens that appear in track paths but carry no identifying information.
var trackNoiseTokens = map[string]bool{
	"":        true,
	".":       true,
	"..":      true,
	"csp":     true,
	"content": true,
	"tracks":  true,
	"data":    true,
	"cfg":     true,
	"0":       true,
}

// trackFromPath pulls a track name, with its layout when present, out of
// whatever path-ish string the server log offers up. URL-encoded input and
// backslash separators are both handled. Returns "" when nothing usable
// remains.
func trackFromPath(s string) string {
	if s == "" {
		return ""
	}

	if unescaped, err := url.QueryUnescape(s); err == nil {
		s = unescaped
	}

	s = strings.ReplaceAll(s, `\`, "/")

	var parts []string

	for _, part := range strings.Split(s, "/") {
		part = strings.TrimSpace(part)

		if trackNoiseTokens[strings.ToLower(part)] {
			continue
		}

		parts = append(parts, part)
	}

	if len(parts) == 0 {
		return ""
	}

	if len(parts) >= 2 {
		track, layout := parts[len(parts)-2], parts[len(parts)-1]

		// A dot means the trailing token is a file name, not a layout.
		if strings.Contains(layout, ".") {
			return track
		}

		return track + "-" + layout
	}

	return parts[len(parts)-1]
}

// normalizeTrack combines the track and layout candidates observed so far
// into one name, preferring whichever candidate already embeds a layout.
func normalizeTrack(track, layout string) string {
	t1 := trackFromPath(track)
	t2 := trackFromPath(layout)

	if strings.Contains(t1, "-") {
		return t1
	}

	if strings.Contains(t2, "-") {
		return t2
	}

	if t1 != "" {
		return t1
	}

	return t2
}
