package ingest

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestTracker() *SessionTracker {
	return NewSessionTracker(logrus.New(), NewMetrics(nil))
}

func TestSessionTrackerScenario(t *testing.T) {
	tracker := newTestTracker()

	events := []Event{
		{Type: EventTrackChanged, Name: "ks_monza"},
		{Type: EventCarChanged, Name: "GT3"},
		{Type: EventDriverIdentified, Name: "Alice"},
	}

	for _, ev := range events {
		if candidate := tracker.Apply(ev); candidate != nil {
			t.Fatalf("context event %s unexpectedly produced a candidate", ev.Type)
		}
	}

	candidate := tracker.Apply(Event{Type: EventLapCompleted, DurationRaw: "92.345", Cuts: 0, CutsKnown: true})

	if candidate == nil {
		t.Fatal("expected a candidate from a fully-attributed lap")
	}

	expected := Candidate{Driver: "Alice", Car: "GT3", Track: "ks_monza", DurationRaw: "92.345", Cuts: 0}

	if *candidate != expected {
		t.Errorf("candidate = %+v, expected %+v", *candidate, expected)
	}
}

func TestSessionTrackerLapBeforeContextIsDropped(t *testing.T) {
	tracker := newTestTracker()

	if candidate := tracker.Apply(Event{Type: EventLapCompleted, Driver: "Alice", DurationRaw: "92.345", Cuts: 0, CutsKnown: true}); candidate != nil {
		t.Errorf("expected a lap with no session context to be dropped, got %+v", *candidate)
	}
}

func TestSessionTrackerPartialContextIsDropped(t *testing.T) {
	partialContextTests := []struct {
		name   string
		events []Event
	}{
		{
			name: "missing driver",
			events: []Event{
				{Type: EventTrackChanged, Name: "ks_monza"},
				{Type: EventCarChanged, Name: "GT3"},
			},
		},
		{
			name: "missing car",
			events: []Event{
				{Type: EventTrackChanged, Name: "ks_monza"},
				{Type: EventDriverIdentified, Name: "Alice"},
			},
		},
		{
			name: "missing track",
			events: []Event{
				{Type: EventCarChanged, Name: "GT3"},
				{Type: EventDriverIdentified, Name: "Alice"},
			},
		},
	}

	for _, test := range partialContextTests {
		t.Run(test.name, func(t *testing.T) {
			tracker := newTestTracker()

			for _, ev := range test.events {
				tracker.Apply(ev)
			}

			lap := Event{Type: EventLapCompleted, DurationRaw: "92.345", Cuts: 0, CutsKnown: true}

			if candidate := tracker.Apply(lap); candidate != nil {
				t.Errorf("expected the lap to be dropped, got %+v", *candidate)
			}
		})
	}
}

func TestSessionTrackerPendingCutsPairing(t *testing.T) {
	tracker := newTestTracker()

	tracker.Apply(Event{Type: EventTrackChanged, Name: "ks_monza"})
	tracker.Apply(Event{Type: EventCarChanged, Name: "GT3"})
	tracker.Apply(Event{Type: EventDriverIdentified, Name: "Alice"})

	if candidate := tracker.Apply(Event{Type: EventLapCompleted, Driver: "Alice", DurationRaw: "1:32.345"}); candidate != nil {
		t.Fatal("lap should wait for its cuts report")
	}

	candidate := tracker.Apply(Event{Type: EventCutsReported, Cuts: 1, CutsKnown: true})

	if candidate == nil {
		t.Fatal("expected a candidate once cuts were reported")
	}

	if candidate.Cuts != 1 || candidate.DurationRaw != "1:32.345" {
		t.Errorf("candidate = %+v, expected cuts=1 time=1:32.345", *candidate)
	}

	if candidate = tracker.Apply(Event{Type: EventCutsReported, Cuts: 0, CutsKnown: true}); candidate != nil {
		t.Errorf("a cuts report with no lap waiting should be ignored, got %+v", *candidate)
	}
}

func TestSessionTrackerLapLineDriverOverridesContext(t *testing.T) {
	tracker := newTestTracker()

	tracker.Apply(Event{Type: EventTrackChanged, Name: "ks_monza"})
	tracker.Apply(Event{Type: EventCarChanged, Name: "GT3"})
	tracker.Apply(Event{Type: EventDriverIdentified, Name: "Alice"})

	candidate := tracker.Apply(Event{Type: EventLapCompleted, Driver: "Bob", DurationRaw: "92.345", Cuts: 0, CutsKnown: true})

	if candidate == nil {
		t.Fatal("expected a candidate")
	}

	if candidate.Driver != "Bob" {
		t.Errorf("candidate driver = %q, expected the lap line's own name to win", candidate.Driver)
	}
}

func TestSessionTrackerFieldsOverwriteIndependently(t *testing.T) {
	tracker := newTestTracker()

	tracker.Apply(Event{Type: EventTrackChanged, Name: "ks_monza"})
	tracker.Apply(Event{Type: EventCarChanged, Name: "GT3"})
	tracker.Apply(Event{Type: EventDriverIdentified, Name: "Alice"})
	tracker.Apply(Event{Type: EventTrackChanged, Name: "ks_brands_hatch"})

	candidate := tracker.Apply(Event{Type: EventLapCompleted, DurationRaw: "92.345", Cuts: 0, CutsKnown: true})

	if candidate == nil {
		t.Fatal("expected a candidate")
	}

	if candidate.Track != "ks_brands_hatch" || candidate.Car != "GT3" || candidate.Driver != "Alice" {
		t.Errorf("candidate = %+v, expected only the track to change", *candidate)
	}
}

func TestSessionTrackerLayoutRefinesTrack(t *testing.T) {
	tracker := newTestTracker()

	tracker.Apply(Event{Type: EventTrackChanged, Name: "csp/0/../ks_nordschleife/touristenfahrten"})
	tracker.Apply(Event{Type: EventCarChanged, Name: "GT3"})
	tracker.Apply(Event{Type: EventDriverIdentified, Name: "Alice"})

	candidate := tracker.Apply(Event{Type: EventLapCompleted, DurationRaw: "8:14.234", Cuts: 0, CutsKnown: true})

	if candidate == nil {
		t.Fatal("expected a candidate")
	}

	if candidate.Track != "ks_nordschleife-touristenfahrten" {
		t.Errorf("track = %q, expected the normalised name", candidate.Track)
	}
}
