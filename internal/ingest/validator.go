package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ParseLapTime parses the duration formats the server log uses:
//
//	1:32:456   minutes:seconds:milliseconds
//	1:32.456   minutes:seconds.milliseconds
//	1:32       minutes:seconds
//	92.345     seconds
//	92345      milliseconds
func ParseLapTime(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)

	if raw == "" {
		return 0, errors.New("empty lap time")
	}

	parts := strings.Split(raw, ":")

	switch len(parts) {
	case 1:
		if strings.Contains(raw, ".") {
			seconds, err := parseSeconds(raw)

			if err != nil {
				return 0, errors.Wrapf(err, "could not parse lap time %q", raw)
			}

			return seconds, nil
		}

		ms, err := strconv.ParseInt(raw, 10, 64)

		if err != nil {
			return 0, errors.Wrapf(err, "could not parse lap time %q", raw)
		}

		return time.Duration(ms) * time.Millisecond, nil
	case 2:
		minutes, err := strconv.ParseInt(parts[0], 10, 64)

		if err != nil {
			return 0, errors.Wrapf(err, "could not parse lap time %q", raw)
		}

		seconds, err := parseSeconds(parts[1])

		if err != nil {
			return 0, errors.Wrapf(err, "could not parse lap time %q", raw)
		}

		return time.Duration(minutes)*time.Minute + seconds, nil
	case 3:
		minutes, err := strconv.ParseInt(parts[0], 10, 64)

		if err != nil {
			return 0, errors.Wrapf(err, "could not parse lap time %q", raw)
		}

		seconds, err := strconv.ParseInt(parts[1], 10, 64)

		if err != nil {
			return 0, errors.Wrapf(err, "could not parse lap time %q", raw)
		}

		ms, err := strconv.ParseInt(parts[2], 10, 64)

		if err != nil {
			return 0, errors.Wrapf(err, "could not parse lap time %q", raw)
		}

		return time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second + time.Duration(ms)*time.Millisecond, nil
	default:
		return 0, errors.Errorf("could not parse lap time %q", raw)
	}
}

// parseSeconds parses a seconds value with an optional decimal fraction.
// The fraction digits are read as milliseconds directly; going through a
// float here would shave a millisecond off values like "1.003".
func parseSeconds(s string) (time.Duration, error) {
	whole, frac, hasFrac := strings.Cut(s, ".")

	seconds, err := strconv.ParseInt(whole, 10, 64)

	if err != nil {
		return 0, err
	}

	lapTime := time.Duration(seconds) * time.Second

	if !hasFrac {
		return lapTime, nil
	}

	if len(frac) > 3 {
		frac = frac[:3]
	}

	for len(frac) < 3 {
		frac += "0"
	}

	ms, err := strconv.ParseInt(frac, 10, 64)

	if err != nil {
		return 0, err
	}

	millis := time.Duration(ms) * time.Millisecond

	if strings.HasPrefix(whole, "-") {
		return lapTime - millis, nil
	}

	return lapTime + millis, nil
}

// Validator decides whether a completed lap counts: no more cuts than
// allowed, and a duration that is positive and under the configured ceiling.
type Validator struct {
	maxCuts    int
	maxLapTime time.Duration

	logger  logrus.FieldLogger
	metrics *Metrics
}

func NewValidator(maxCuts int, maxLapTime time.Duration, logger logrus.FieldLogger, metrics *Metrics) *Validator {
	return &Validator{
		maxCuts:    maxCuts,
		maxLapTime: maxLapTime,
		logger:     logger,
		metrics:    metrics,
	}
}

// Validate returns the parsed lap time and whether the lap is clean.
// Rejected laps are counted in diagnostics and otherwise discarded.
func (v *Validator) Validate(candidate *Candidate) (time.Duration, bool) {
	lapTime, err := ParseLapTime(candidate.DurationRaw)

	if err != nil {
		v.logger.WithError(err).Warnf("Ignoring lap by %q with unparseable time", candidate.Driver)
		v.metrics.ParseFailures.Inc()

		return 0, false
	}

	if lapTime <= 0 || (v.maxLapTime > 0 && lapTime > v.maxLapTime) {
		v.logger.Debugf("Ignoring lap by %q with implausible time %s", candidate.Driver, lapTime)
		v.metrics.LapsInvalid.Inc()

		return 0, false
	}

	if candidate.Cuts > v.maxCuts {
		v.logger.Debugf("Ignoring lap by %q with %d cuts", candidate.Driver, candidate.Cuts)
		v.metrics.LapsInvalid.Inc()

		return 0, false
	}

	return lapTime, true
}
