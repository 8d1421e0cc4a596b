package ingest

import (
	"time"

	"github.com/pkg/errors"
)

// Duration wraps time.Duration so config values can be written as "1s"
// rather than nanosecond integers.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string

	if err := unmarshal(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)

	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}

	*d = Duration(parsed)

	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Markers are the textual patterns which identify interesting lines in the
// server log. They are a contract with the log producer, not something this
// program controls, so every pattern can be overridden from the config file
// if the server's log format changes.
type Markers struct {
	// Lap matches a lap completion line. Group 1 is the driver name, group
	// 2 the raw lap time. An optional group 3 is the cuts count, for log
	// dialects which report it on the same line.
	Lap string `json:"lap" yaml:"lap"`
	// Cuts matches the line reporting the cuts count for the most recently
	// completed lap. Group 1 is the count.
	Cuts string `json:"cuts" yaml:"cuts"`
	// Track and Layout match the TRACK=/CONFIG= lines of the server's
	// startup dump. Group 1 is the value.
	Track  string `json:"track" yaml:"track"`
	Layout string `json:"layout" yaml:"layout"`
	// TrackJSON and LayoutJSON match the /INFO JSON blobs the server echoes.
	TrackJSON  string `json:"track_json" yaml:"track_json"`
	LayoutJSON string `json:"layout_json" yaml:"layout_json"`
	// TrackPath matches content/tracks/... paths (drs_zones and friends).
	// Group 1 is the path remainder after content/tracks.
	TrackPath string `json:"track_path" yaml:"track_path"`
	// TrackQuery matches a track= parameter inside lobby registration URLs.
	// Group 1 is the parameter value.
	TrackQuery string `json:"track_query" yaml:"track_query"`
	// Car matches a car request line. Group 1 is the car model.
	Car string `json:"car" yaml:"car"`
	// Driver matches a driver connection line. Group 1 is the driver name.
	Driver string `json:"driver" yaml:"driver"`
}

func DefaultMarkers() Markers {
	return Markers{
		Lap:        `^LAP\s+(.+?)\s+([\d:.]+)$`,
		Cuts:       `(?i)Cuts:\s*(\d+)`,
		Track:      `(?i)^TRACK=(.+)$`,
		Layout:     `(?i)^CONFIG=(.+)$`,
		TrackJSON:  `(?i)"TRACK"\s*:\s*"([^"]+)"`,
		LayoutJSON: `(?i)"CONFIG"\s*:\s*"([^"]*)"`,
		TrackPath:  `(?i)content/tracks(?:/|\\)(.+)`,
		TrackQuery: `(?i)track=([^\s&"',]+)`,
		Car:        `^REQUESTED CAR:\s*(.+?)\*?$`,
		Driver:     `^DRIVER ACCEPTED FOR CAR\s+(.+)$`,
	}
}

type Config struct {
	// LogDir is the session log folder written by the server. Created if
	// absent, since the server may not have started yet.
	LogDir string `json:"log_dir" yaml:"log_dir"`
	// LogPattern is the glob matched against file names in LogDir.
	LogPattern string `json:"log_pattern" yaml:"log_pattern"`

	Database     string   `json:"database" yaml:"database"`
	PollInterval Duration `json:"poll_interval" yaml:"poll_interval"`
	// MetricsAddress, when set, serves prometheus diagnostics on /metrics.
	MetricsAddress string `json:"metrics_address" yaml:"metrics_address"`

	Markers Markers `json:"markers" yaml:"markers"`

	// MaxCuts is the highest cuts count still considered a clean lap.
	MaxCuts int `json:"max_cuts" yaml:"max_cuts"`
	// MaxLapTime rejects absurd durations produced by log corruption.
	MaxLapTime Duration `json:"max_lap_time" yaml:"max_lap_time"`

	// StoreRetries bounds the exponential backoff on a failed write before
	// the record is abandoned.
	StoreRetries uint64 `json:"store_retries" yaml:"store_retries"`
}

func DefaultConfig() Config {
	return Config{
		LogDir:       "./logs/session",
		LogPattern:   "output_*",
		Database:     "./data/ac_laptimes.db",
		PollInterval: Duration(time.Second),
		Markers:      DefaultMarkers(),
		MaxCuts:      0,
		MaxLapTime:   Duration(30 * time.Minute),
		StoreRetries: 5,
	}
}
