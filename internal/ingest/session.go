package ingest

import (
	"github.com/sirupsen/logrus"
)

// SessionContext is the transient state needed to attribute a lap: the lap
// completion line alone only carries a driver and a time, everything else
// comes from surrounding lines. It is owned by exactly one SessionTracker
// and rebuilt from scratch on restart.
type SessionContext struct {
	trackCandidate  string
	layoutCandidate string
	car             string
	driver          string
}

// Track returns the normalised track name, or "" while no track line has
// been seen yet.
func (s *SessionContext) Track() string {
	if s.trackCandidate == "" && s.layoutCandidate == "" {
		return ""
	}

	return normalizeTrack(s.trackCandidate, s.layoutCandidate)
}

func (s *SessionContext) Car() string {
	return s.car
}

func (s *SessionContext) Driver() string {
	return s.driver
}

// Candidate is a completed lap whose cuts count is known, ready for
// validation.
type Candidate struct {
	Driver      string
	Car         string
	Track       string
	DurationRaw string
	Cuts        int
}

type pendingLap struct {
	driver      string
	durationRaw string
}

// SessionTracker consumes classified events, maintains the SessionContext
// and pairs lap completion lines with their cuts report. It emits a
// Candidate once a lap is fully known and fully attributed; laps completed
// with an incomplete context are dropped with a diagnostic.
type SessionTracker struct {
	session SessionContext
	pending *pendingLap

	logger  logrus.FieldLogger
	metrics *Metrics
}

func NewSessionTracker(logger logrus.FieldLogger, metrics *Metrics) *SessionTracker {
	return &SessionTracker{
		logger:  logger,
		metrics: metrics,
	}
}

func (t *SessionTracker) Context() *SessionContext {
	return &t.session
}

// Apply consumes one event. The returned Candidate is non-nil only when the
// event completed a fully-attributed lap.
func (t *SessionTracker) Apply(ev Event) *Candidate {
	switch ev.Type {
	case EventTrackChanged:
		t.session.trackCandidate = ev.Name

		if ev.Layout != "" {
			t.session.layoutCandidate = ev.Layout
		} else if ev.LayoutReset {
			t.session.layoutCandidate = ""
		}
	case EventLayoutChanged:
		t.session.layoutCandidate = ev.Name
	case EventCarChanged:
		t.session.car = ev.Name
	case EventDriverIdentified:
		t.session.driver = ev.Name
	case EventLapCompleted:
		if ev.CutsKnown {
			return t.complete(ev.Driver, ev.DurationRaw, ev.Cuts)
		}

		if t.pending != nil {
			t.logger.Warnf("Lap %q by %q superseded before its cuts were reported, dropping it", t.pending.durationRaw, t.pending.driver)
			t.metrics.LapsSkipped.Inc()
		}

		t.pending = &pendingLap{driver: ev.Driver, durationRaw: ev.DurationRaw}
	case EventCutsReported:
		if t.pending == nil {
			// A cuts report with no lap waiting, e.g. after restarting
			// mid-session. Nothing to attribute it to.
			return nil
		}

		pending := t.pending
		t.pending = nil

		return t.complete(pending.driver, pending.durationRaw, ev.Cuts)
	}

	return nil
}

func (t *SessionTracker) complete(driver, durationRaw string, cuts int) *Candidate {
	if driver == "" {
		driver = t.session.driver
	}

	track := t.session.Track()
	car := t.session.car

	if driver == "" || car == "" || track == "" {
		t.logger.Warnf("Dropping lap %q: incomplete session context (track=%q, car=%q, driver=%q)", durationRaw, track, car, driver)
		t.metrics.LapsSkipped.Inc()

		return nil
	}

	return &Candidate{
		Driver:      driver,
		Car:         car,
		Track:       track,
		DurationRaw: durationRaw,
		Cuts:        cuts,
	}
}
