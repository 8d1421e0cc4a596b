package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type EventType int

const (
	// EventIrrelevant is any line the pipeline has no interest in,
	// including recognised markers with malformed payloads.
	EventIrrelevant EventType = iota
	EventTrackChanged
	EventLayoutChanged
	EventCarChanged
	EventDriverIdentified
	EventLapCompleted
	EventCutsReported
)

func (t EventType) String() string {
	switch t {
	case EventTrackChanged:
		return "TrackChanged"
	case EventLayoutChanged:
		return "LayoutChanged"
	case EventCarChanged:
		return "CarChanged"
	case EventDriverIdentified:
		return "DriverIdentified"
	case EventLapCompleted:
		return "LapCompleted"
	case EventCutsReported:
		return "CutsReported"
	default:
		return "Irrelevant"
	}
}

// Event is the classified form of a single log line.
type Event struct {
	Type EventType

	// Name carries the payload for track, layout, car and driver changes.
	Name string

	// Layout is set alongside a track change when a single line reports
	// both, as the /INFO JSON dumps do.
	Layout string
	// LayoutReset clears any previously observed layout; set when the
	// track name already embeds its layout.
	LayoutReset bool

	// Lap completion payload. Driver may be empty for log dialects whose
	// lap lines carry no name, in which case the session context supplies
	// the attribution.
	Driver      string
	DurationRaw string
	Cuts        int
	CutsKnown   bool
}

// Classifier maps raw log lines to Events. It is stateless and safe to
// share between pipelines.
type Classifier struct {
	lap        *regexp.Regexp
	cuts       *regexp.Regexp
	track      *regexp.Regexp
	layout     *regexp.Regexp
	trackJSON  *regexp.Regexp
	layoutJSON *regexp.Regexp
	trackPath  *regexp.Regexp
	trackQuery *regexp.Regexp
	car        *regexp.Regexp
	driver     *regexp.Regexp
}

func NewClassifier(markers Markers) (*Classifier, error) {
	c := &Classifier{}

	for _, pattern := range []struct {
		name string
		expr string
		dest **regexp.Regexp
	}{
		{"lap", markers.Lap, &c.lap},
		{"cuts", markers.Cuts, &c.cuts},
		{"track", markers.Track, &c.track},
		{"layout", markers.Layout, &c.layout},
		{"track_json", markers.TrackJSON, &c.trackJSON},
		{"layout_json", markers.LayoutJSON, &c.layoutJSON},
		{"track_path", markers.TrackPath, &c.trackPath},
		{"track_query", markers.TrackQuery, &c.trackQuery},
		{"car", markers.Car, &c.car},
		{"driver", markers.Driver, &c.driver},
	} {
		if pattern.expr == "" {
			continue
		}

		compiled, err := regexp.Compile(pattern.expr)

		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s marker pattern", pattern.name)
		}

		*pattern.dest = compiled
	}

	return c, nil
}

func irrelevant() Event {
	return Event{Type: EventIrrelevant}
}

// trackCandidate turns a path-ish track reference into a track change.
func trackCandidate(candidate string) Event {
	parsed := trackFromPath(candidate)

	if parsed == "" {
		return irrelevant()
	}

	if strings.Contains(parsed, "-") {
		// The candidate carried both track and layout; any layout seen
		// earlier no longer applies.
		return Event{Type: EventTrackChanged, Name: parsed, LayoutReset: true}
	}

	// Keep the raw candidate so a later CONFIG= line can still refine it.
	return Event{Type: EventTrackChanged, Name: candidate}
}

// Classify maps one raw line to an Event. A line matching a marker whose
// payload turns out to be garbage classifies Irrelevant; classification
// never fails.
func (c *Classifier) Classify(line string) Event {
	line = strings.TrimSpace(line)

	if line == "" {
		return irrelevant()
	}

	if m := match(c.track, line); m != nil {
		name := strings.TrimSpace(m[1])

		if name == "" {
			return irrelevant()
		}

		return Event{Type: EventTrackChanged, Name: name}
	}

	if m := match(c.layout, line); m != nil {
		name := strings.TrimSpace(m[1])

		if name == "" {
			return irrelevant()
		}

		return Event{Type: EventLayoutChanged, Name: name}
	}

	if m := match(c.trackJSON, line); m != nil {
		ev := Event{Type: EventTrackChanged, Name: strings.TrimSpace(m[1])}

		if lm := match(c.layoutJSON, line); lm != nil {
			ev.Layout = strings.TrimSpace(lm[1])
		}

		if ev.Name == "" {
			return irrelevant()
		}

		return ev
	}

	if m := match(c.layoutJSON, line); m != nil {
		name := strings.TrimSpace(m[1])

		if name == "" {
			return irrelevant()
		}

		return Event{Type: EventLayoutChanged, Name: name}
	}

	if m := match(c.trackPath, line); m != nil {
		return trackCandidate(strings.TrimSpace(m[1]))
	}

	if m := match(c.trackQuery, line); m != nil {
		// Registration URLs carry other patterns too, so an unusable
		// track= value falls through to the remaining markers.
		if ev := trackCandidate(strings.TrimSpace(m[1])); ev.Type != EventIrrelevant {
			return ev
		}
	}

	if m := match(c.car, line); m != nil {
		car := strings.TrimSuffix(strings.TrimSpace(m[1]), "*")

		if car == "" {
			return irrelevant()
		}

		return Event{Type: EventCarChanged, Name: car}
	}

	if m := match(c.driver, line); m != nil {
		driver := strings.TrimSpace(m[1])

		// The server sometimes logs the car slot number where a name
		// should be; a digits-only "driver" is noise.
		if driver == "" || isDigits(driver) {
			return irrelevant()
		}

		return Event{Type: EventDriverIdentified, Name: driver}
	}

	if m := match(c.cuts, line); m != nil {
		cuts, err := strconv.Atoi(m[1])

		if err != nil {
			return irrelevant()
		}

		return Event{Type: EventCutsReported, Cuts: cuts, CutsKnown: true}
	}

	if m := match(c.lap, line); m != nil {
		driver := strings.TrimSpace(m[1])
		raw := strings.TrimSpace(m[2])

		if raw == "" {
			return irrelevant()
		}

		ev := Event{Type: EventLapCompleted, Driver: driver, DurationRaw: raw}

		// A third capture group means this log dialect reports cuts inline.
		if len(m) > 3 && m[3] != "" {
			cuts, err := strconv.Atoi(m[3])

			if err != nil {
				return irrelevant()
			}

			ev.Cuts = cuts
			ev.CutsKnown = true
		}

		return ev
	}

	return irrelevant()
}

func match(re *regexp.Regexp, line string) []string {
	if re == nil {
		return nil
	}

	return re.FindStringSubmatch(line)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return len(s) > 0
}
