package ingest

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Line is one complete log line together with the byte offset immediately
// after it, which is the resume bookmark for its file.
type Line struct {
	Path   string
	Text   string
	Offset int64
}

// TailReader follows a single append-only log file, emitting newly appended
// lines in arrival order. It tolerates the file not existing yet, never
// re-delivers a line, and restarts from the top of the file when it detects
// rotation (the file shrank, or the path now names a different file).
type TailReader struct {
	path         string
	pollInterval time.Duration
	logger       logrus.FieldLogger

	file *os.File
	info os.FileInfo

	// offset is the position after the last complete line delivered; pos is
	// the position after the last byte read, which runs ahead of offset
	// while a partial line sits in the buffer.
	offset  int64
	pos     int64
	partial []byte
	buf     []byte
}

// NewTailReader tails path starting from offset, the caller's durable
// resume bookmark.
func NewTailReader(path string, offset int64, pollInterval time.Duration, logger logrus.FieldLogger) *TailReader {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &TailReader{
		path:         path,
		offset:       offset,
		pollInterval: pollInterval,
		logger:       logger,
		buf:          make([]byte, 32*1024),
	}
}

// Run tails the file until ctx is cancelled, sending each complete appended
// line to out. It returns nil on cancellation and an error only when the
// file is permanently inaccessible.
func (r *TailReader) Run(ctx context.Context, out chan<- Line) error {
	defer r.closeFile()

	for {
		if r.file == nil {
			if err := r.open(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}

				return err
			}
		}

		if err := r.readAvailable(ctx, out); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			// Transient read error: reopen and carry on from the bookmark.
			r.logger.WithError(err).Warnf("Read error on %s, reopening", r.path)
			r.closeFile()

			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.pollInterval):
		}

		if r.rotated() {
			r.logger.Infof("Log file %s was rotated, reopening", r.path)
			r.closeFile()
		}
	}
}

// Offset returns the bookmark after the last delivered line.
func (r *TailReader) Offset() int64 {
	return r.offset
}

func (r *TailReader) open(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = r.pollInterval
	bo.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		file, err := os.Open(r.path)

		if os.IsNotExist(err) {
			// The server may simply not have started this session yet.
			return err
		} else if err != nil {
			return backoff.Permanent(errors.Wrapf(err, "could not open log file %s", r.path))
		}

		info, err := file.Stat()

		if err != nil {
			_ = file.Close()

			return backoff.Permanent(errors.Wrapf(err, "could not stat log file %s", r.path))
		}

		if info.Size() < r.offset || (r.info != nil && !os.SameFile(r.info, info)) {
			r.logger.Infof("Log file %s restarted, reading from the beginning", r.path)
			r.offset = 0
		}

		// Reading resumes from the last complete line, so any partial
		// line is about to be read again.
		r.partial = r.partial[:0]

		if _, err := file.Seek(r.offset, io.SeekStart); err != nil {
			_ = file.Close()

			return backoff.Permanent(errors.Wrapf(err, "could not seek log file %s", r.path))
		}

		r.file = file
		r.info = info
		r.pos = r.offset

		return nil
	}, backoff.WithContext(bo, ctx))
}

func (r *TailReader) readAvailable(ctx context.Context, out chan<- Line) error {
	for {
		n, err := r.file.Read(r.buf)

		if n > 0 {
			if consumeErr := r.consume(ctx, out, r.buf[:n]); consumeErr != nil {
				return consumeErr
			}
		}

		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
	}
}

func (r *TailReader) consume(ctx context.Context, out chan<- Line, data []byte) error {
	for _, b := range data {
		r.pos++

		if b != '\n' {
			r.partial = append(r.partial, b)
			continue
		}

		text := strings.TrimSuffix(string(r.partial), "\r")
		r.partial = r.partial[:0]
		r.offset = r.pos

		select {
		case out <- Line{Path: r.path, Text: text, Offset: r.offset}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (r *TailReader) rotated() bool {
	info, err := os.Stat(r.path)

	if os.IsNotExist(err) {
		return true
	} else if err != nil {
		r.logger.WithError(err).Warnf("Could not stat %s", r.path)

		return false
	}

	return !os.SameFile(r.info, info) || info.Size() < r.pos
}

func (r *TailReader) closeFile() {
	if r.file == nil {
		return
	}

	_ = r.file.Close()
	r.file = nil
}
