package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// LapRecord is one clean, completed lap, fully attributed. Records are
// written exactly once and never mutated.
type LapRecord struct {
	Driver    string
	Car       string
	Track     string
	LapTime   time.Duration
	Timestamp time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS players (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS cars (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	model TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS tracks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS lap_times (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	player_id INTEGER NOT NULL,
	car_id INTEGER NOT NULL,
	track_id INTEGER NOT NULL,
	laptime_ms INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	FOREIGN KEY(player_id) REFERENCES players(id),
	FOREIGN KEY(car_id) REFERENCES cars(id),
	FOREIGN KEY(track_id) REFERENCES tracks(id)
);

CREATE TABLE IF NOT EXISTS ingest_offsets (
	log_file TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Store is the SQLite persistence layer shared by the log watcher (writer)
// and the web display (reader). Schema creation is idempotent; opening an
// existing database is a no-op beyond verification.
type Store struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

func Open(path string, logger logrus.FieldLogger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "could not create database directory %s", dir)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)

	db, err := sql.Open("sqlite", dsn)

	if err != nil {
		return nil, errors.Wrapf(err, "could not open database %s", path)
	}

	// One writer at a time keeps every insert a single atomic transaction.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()

		return nil, errors.Wrapf(err, "could not reach database %s", path)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()

		return nil, errors.Wrap(err, "could not initialise schema")
	}

	logger.Debugf("Lap time database ready at %s", path)

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertLap writes a lap and, when logFile is non-empty, the resume offset
// of the line that produced it, in one transaction. Readers never observe a
// lap without its offset or vice versa.
func (s *Store) InsertLap(record LapRecord, logFile string, offset int64) error {
	tx, err := s.db.Begin()

	if err != nil {
		return errors.Wrap(err, "could not begin transaction")
	}

	defer func() {
		_ = tx.Rollback()
	}()

	playerID, err := getOrCreate(tx, "players", "name", record.Driver)

	if err != nil {
		return err
	}

	carID, err := getOrCreate(tx, "cars", "model", record.Car)

	if err != nil {
		return err
	}

	trackID, err := getOrCreate(tx, "tracks", "name", record.Track)

	if err != nil {
		return err
	}

	timestamp := record.Timestamp

	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	_, err = tx.Exec(
		`INSERT INTO lap_times (player_id, car_id, track_id, laptime_ms, timestamp) VALUES (?, ?, ?, ?, ?)`,
		playerID, carID, trackID, record.LapTime.Milliseconds(), timestamp.UTC().Format(time.RFC3339),
	)

	if err != nil {
		return errors.Wrap(err, "could not insert lap")
	}

	if logFile != "" {
		if err := upsertOffset(tx, logFile, offset); err != nil {
			return err
		}
	}

	return errors.Wrap(tx.Commit(), "could not commit lap")
}

// CommitOffset durably records that everything in logFile up to offset has
// been consumed.
func (s *Store) CommitOffset(logFile string, offset int64) error {
	tx, err := s.db.Begin()

	if err != nil {
		return errors.Wrap(err, "could not begin transaction")
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if err := upsertOffset(tx, logFile, offset); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "could not commit offset")
}

// Offset returns the stored resume bookmark for logFile, zero when the file
// has never been seen.
func (s *Store) Offset(logFile string) (int64, error) {
	var position int64

	err := s.db.QueryRow(`SELECT position FROM ingest_offsets WHERE log_file = ?`, logFile).Scan(&position)

	if err == sql.ErrNoRows {
		return 0, nil
	} else if err != nil {
		return 0, errors.Wrapf(err, "could not load offset for %s", logFile)
	}

	return position, nil
}

func upsertOffset(tx *sql.Tx, logFile string, offset int64) error {
	_, err := tx.Exec(
		`INSERT INTO ingest_offsets (log_file, position, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(log_file) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`,
		logFile, offset, time.Now().UTC().Format(time.RFC3339),
	)

	return errors.Wrapf(err, "could not store offset for %s", logFile)
}

// getOrCreate returns the id of the named dimension row, inserting it on
// first sight. table and column are compile-time constants, never input.
func getOrCreate(tx *sql.Tx, table, column, value string) (int64, error) {
	var id int64

	err := tx.QueryRow(fmt.Sprintf(`SELECT id FROM %s WHERE %s = ?`, table, column), value).Scan(&id)

	if err == nil {
		return id, nil
	} else if err != sql.ErrNoRows {
		return 0, errors.Wrapf(err, "could not look up %s", table)
	}

	result, err := tx.Exec(fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?)`, table, column), value)

	if err != nil {
		return 0, errors.Wrapf(err, "could not insert into %s", table)
	}

	id, err = result.LastInsertId()

	return id, errors.Wrapf(err, "could not read new %s id", table)
}
