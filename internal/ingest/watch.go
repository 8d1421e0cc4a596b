package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/cj123/watcher"
	"github.com/mattn/go-zglob"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Watcher discovers session log files in the configured folder and runs one
// independent ingestion pipeline per file. Each pipeline owns its own
// SessionContext and resume offset; nothing is shared between them beyond
// the store.
type Watcher struct {
	cfg        Config
	classifier *Classifier
	validator  *Validator
	sink       Sink

	logger  logrus.FieldLogger
	metrics *Metrics

	mutex   sync.Mutex
	watched map[string]bool
	tailErr error
	failed  chan struct{}
	wg      sync.WaitGroup
}

func NewWatcher(cfg Config, sink Sink, logger logrus.FieldLogger, metrics *Metrics) (*Watcher, error) {
	classifier, err := NewClassifier(cfg.Markers)

	if err != nil {
		return nil, err
	}

	return &Watcher{
		cfg:        cfg,
		classifier: classifier,
		validator:  NewValidator(cfg.MaxCuts, cfg.MaxLapTime.Duration(), logger, metrics),
		sink:       sink,
		logger:     logger,
		metrics:    metrics,
		watched:    make(map[string]bool),
		failed:     make(chan struct{}),
	}, nil
}

// Run watches the log folder until ctx is cancelled. Session logs already
// present are picked up immediately; new ones as the fs watcher notices
// them.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.LogDir, 0755); err != nil {
		return errors.Wrapf(err, "could not create log directory %s", w.cfg.LogDir)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-w.failed:
			cancel()
		case <-ctx.Done():
		}
	}()

	matches, err := zglob.Glob(filepath.Join(w.cfg.LogDir, w.cfg.LogPattern))

	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "could not scan log directory %s", w.cfg.LogDir)
	}

	for _, path := range matches {
		w.watchFile(ctx, path)
	}

	fsWatcher := watcher.New()
	fsWatcher.FilterOps(watcher.Create, watcher.Move, watcher.Rename)

	if err := fsWatcher.Add(w.cfg.LogDir); err != nil {
		return errors.Wrapf(err, "could not watch log directory %s", w.cfg.LogDir)
	}

	go func() {
		<-ctx.Done()
		fsWatcher.Close()
	}()

	go func() {
		for {
			select {
			case event := <-fsWatcher.Event:
				if event.IsDir() {
					continue
				}

				if ok, _ := filepath.Match(w.cfg.LogPattern, filepath.Base(event.Path)); ok {
					w.watchFile(ctx, event.Path)
				}
			case err := <-fsWatcher.Error:
				w.logger.WithError(err).Errorf("Log directory watcher error")
			case <-fsWatcher.Closed:
				return
			}
		}
	}()

	w.logger.Infof("Watching for laps in: %s", filepath.Join(w.cfg.LogDir, w.cfg.LogPattern))

	if err := fsWatcher.Start(w.cfg.PollInterval.Duration()); err != nil {
		return errors.Wrap(err, "could not start log directory watcher")
	}

	w.wg.Wait()

	w.mutex.Lock()
	defer w.mutex.Unlock()

	return w.tailErr
}

// fail stops the whole watcher. A session log that cannot be read means
// laps are being lost silently, which the operator has to notice.
func (w *Watcher) fail(err error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.tailErr != nil {
		return
	}

	w.tailErr = err
	close(w.failed)
}

func (w *Watcher) watchFile(ctx context.Context, path string) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.watched[path] {
		return
	}

	w.watched[path] = true

	offset, err := w.sink.Offset(path)

	if err != nil {
		w.logger.WithError(err).Errorf("Could not load resume offset for %s, reading from the beginning", path)
		offset = 0
	}

	logger := w.logger.WithField("log", filepath.Base(path))
	pipeline := NewPipeline(w.classifier, w.validator, w.sink, w.cfg.StoreRetries, logger, w.metrics)
	reader := NewTailReader(path, offset, w.cfg.PollInterval.Duration(), logger)

	w.logger.Infof("Watching session log %s from offset %d", path, offset)

	lines := make(chan Line)

	w.wg.Add(2)

	go func() {
		defer w.wg.Done()
		defer close(lines)

		if err := reader.Run(ctx, lines); err != nil {
			logger.WithError(err).Errorf("Tail of %s stopped", path)
			w.fail(errors.Wrapf(err, "session log %s is unreadable", path))
		}
	}()

	go func() {
		defer w.wg.Done()

		pipeline.Run(ctx, lines)
	}()
}
