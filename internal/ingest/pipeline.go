package ingest

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"justapengu.in/acstats/internal/store"
)

// Sink is where validated laps and resume bookmarks end up. Implemented by
// the SQLite store.
type Sink interface {
	// InsertLap durably inserts a lap and the resume offset of the line
	// that produced it, atomically.
	InsertLap(record store.LapRecord, logFile string, offset int64) error
	// CommitOffset records that everything up to offset has been consumed.
	CommitOffset(logFile string, offset int64) error
	// Offset returns the stored bookmark for a log file, zero when none.
	Offset(logFile string) (int64, error)
}

// Pipeline is one sequential ingestion loop for one log file: classify each
// line, update the session context, validate completed laps and persist the
// clean ones. Strictly ordered; each line's offset is committed before the
// next line is consumed.
type Pipeline struct {
	classifier *Classifier
	tracker    *SessionTracker
	validator  *Validator
	sink       Sink

	maxRetries uint64
	logger     logrus.FieldLogger
	metrics    *Metrics
}

func NewPipeline(classifier *Classifier, validator *Validator, sink Sink, maxRetries uint64, logger logrus.FieldLogger, metrics *Metrics) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		tracker:    NewSessionTracker(logger, metrics),
		validator:  validator,
		sink:       sink,
		maxRetries: maxRetries,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run consumes lines until ctx is cancelled or the channel closes.
func (p *Pipeline) Run(ctx context.Context, lines <-chan Line) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}

			p.ProcessLine(line)
		}
	}
}

// ProcessLine feeds one line through the pipeline. It never fails: corrupt
// lines are skipped and write failures are bounded-retried, logged and
// abandoned so a single bad record cannot halt ingestion.
func (p *Pipeline) ProcessLine(line Line) {
	p.metrics.LinesRead.Inc()

	event := p.classifier.Classify(line.Text)
	candidate := p.tracker.Apply(event)

	if candidate == nil {
		p.commitOffset(line)

		return
	}

	lapTime, clean := p.validator.Validate(candidate)

	if !clean {
		p.commitOffset(line)

		return
	}

	record := store.LapRecord{
		Driver:    candidate.Driver,
		Car:       candidate.Car,
		Track:     candidate.Track,
		LapTime:   lapTime,
		Timestamp: time.Now().UTC(),
	}

	err := p.withRetry(func() error {
		return p.sink.InsertLap(record, line.Path, line.Offset)
	})

	if err != nil {
		p.logger.WithError(err).Errorf("Could not persist lap %s by %s at %s, continuing with next line", lapTime, record.Driver, record.Track)

		return
	}

	p.metrics.LapsPersisted.Inc()
	p.logger.Debugf("Lap: %s [%s] %s @ %s", record.Driver, record.Car, lapTime, record.Track)
}

func (p *Pipeline) commitOffset(line Line) {
	err := p.withRetry(func() error {
		return p.sink.CommitOffset(line.Path, line.Offset)
	})

	if err != nil {
		// Worst case the line is replayed after a restart; replaying a
		// non-lap line is harmless.
		p.logger.WithError(err).Errorf("Could not commit offset %d for %s", line.Offset, line.Path)
	}
}

func (p *Pipeline) withRetry(operation func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := operation()

		if err != nil {
			p.metrics.StoreRetries.Inc()
		}

		return err
	}, backoff.WithMaxRetries(bo, p.maxRetries))
}
