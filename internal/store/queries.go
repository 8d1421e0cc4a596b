package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// LeaderboardLine is one row of a leaderboard: a lap with its attribution.
type LeaderboardLine struct {
	Player    string
	Car       string
	Track     string
	LapTimeMs int64
	Timestamp time.Time
}

// LapTime formats the lap time as m:ss.mmm.
func (l LeaderboardLine) LapTime() string {
	return FormatLapTime(l.LapTimeMs)
}

// PlayerStanding is one row of the overall leaderboard.
type PlayerStanding struct {
	Player    string
	BestLapMs int64
	Laps      int
}

func (p PlayerStanding) BestLap() string {
	return FormatLapTime(p.BestLapMs)
}

// FormatLapTime renders milliseconds as m:ss.mmm.
func FormatLapTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}

	return fmt.Sprintf("%d:%02d.%03d", ms/60000, (ms%60000)/1000, ms%1000)
}

// TopForTrack returns the fastest lap per player and car on a track,
// fastest first.
func (s *Store) TopForTrack(track string, limit int) ([]LeaderboardLine, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		WITH best_laps AS (
			SELECT player_id, car_id, track_id, MIN(laptime_ms) AS best_ms
			FROM lap_times
			WHERE track_id = (SELECT id FROM tracks WHERE name = ?)
			GROUP BY player_id, car_id, track_id
		)
		SELECT p.name, c.model, t.name, b.best_ms, MIN(l.timestamp)
		FROM best_laps b
		JOIN lap_times l
			ON l.player_id = b.player_id
			AND l.car_id = b.car_id
			AND l.track_id = b.track_id
			AND l.laptime_ms = b.best_ms
		JOIN players p ON p.id = b.player_id
		JOIN cars c ON c.id = b.car_id
		JOIN tracks t ON t.id = b.track_id
		GROUP BY p.name, c.model, t.name, b.best_ms
		ORDER BY b.best_ms ASC
		LIMIT ?`, track, limit)

	if err != nil {
		return nil, errors.Wrapf(err, "could not query top laps for %s", track)
	}

	return scanLeaderboardLines(rows)
}

// TopAllTracks returns the single best lap on each track, keyed by track
// name.
func (s *Store) TopAllTracks() (map[string]LeaderboardLine, error) {
	rows, err := s.db.Query(`
		WITH best_per_track AS (
			SELECT track_id, MIN(laptime_ms) AS best_ms
			FROM lap_times
			GROUP BY track_id
		)
		SELECT p.name, c.model, t.name, l.laptime_ms, MIN(l.timestamp)
		FROM best_per_track b
		JOIN lap_times l
			ON l.track_id = b.track_id
			AND l.laptime_ms = b.best_ms
		JOIN players p ON p.id = l.player_id
		JOIN cars c ON c.id = l.car_id
		JOIN tracks t ON t.id = l.track_id
		GROUP BY t.name
		ORDER BY t.name ASC`)

	if err != nil {
		return nil, errors.Wrap(err, "could not query best laps per track")
	}

	lines, err := scanLeaderboardLines(rows)

	if err != nil {
		return nil, err
	}

	best := make(map[string]LeaderboardLine, len(lines))

	for _, line := range lines {
		best[line.Track] = line
	}

	return best, nil
}

// Tracks lists every known track name, alphabetically.
func (s *Store) Tracks() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM tracks ORDER BY name ASC`)

	if err != nil {
		return nil, errors.Wrap(err, "could not query tracks")
	}

	defer rows.Close()

	var tracks []string

	for rows.Next() {
		var name string

		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "could not scan track")
		}

		tracks = append(tracks, name)
	}

	return tracks, errors.Wrap(rows.Err(), "could not read tracks")
}

// LapsForPlayer returns a player's laps, fastest first, capped at 200.
func (s *Store) LapsForPlayer(player string) ([]LeaderboardLine, error) {
	rows, err := s.db.Query(`
		SELECT p.name, c.model, t.name, l.laptime_ms, l.timestamp
		FROM lap_times l
		JOIN players p ON p.id = l.player_id
		JOIN cars c ON c.id = l.car_id
		JOIN tracks t ON t.id = l.track_id
		WHERE p.name = ?
		ORDER BY l.laptime_ms ASC
		LIMIT 200`, player)

	if err != nil {
		return nil, errors.Wrapf(err, "could not query laps for %s", player)
	}

	return scanLeaderboardLines(rows)
}

// OverallLeaderboard returns each player's best lap and lap count, best lap
// first.
func (s *Store) OverallLeaderboard(limit int) ([]PlayerStanding, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT p.name, MIN(l.laptime_ms), COUNT(*)
		FROM lap_times l
		JOIN players p ON p.id = l.player_id
		GROUP BY p.id
		ORDER BY MIN(l.laptime_ms) ASC
		LIMIT ?`, limit)

	if err != nil {
		return nil, errors.Wrap(err, "could not query leaderboard")
	}

	defer rows.Close()

	var standings []PlayerStanding

	for rows.Next() {
		var standing PlayerStanding

		if err := rows.Scan(&standing.Player, &standing.BestLapMs, &standing.Laps); err != nil {
			return nil, errors.Wrap(err, "could not scan standing")
		}

		standings = append(standings, standing)
	}

	return standings, errors.Wrap(rows.Err(), "could not read leaderboard")
}

func scanLeaderboardLines(rows *sql.Rows) ([]LeaderboardLine, error) {
	defer rows.Close()

	var lines []LeaderboardLine

	for rows.Next() {
		var (
			line      LeaderboardLine
			timestamp string
		)

		if err := rows.Scan(&line.Player, &line.Car, &line.Track, &line.LapTimeMs, &timestamp); err != nil {
			return nil, errors.Wrap(err, "could not scan lap")
		}

		if parsed, err := time.Parse(time.RFC3339, timestamp); err == nil {
			line.Timestamp = parsed
		}

		lines = append(lines, line)
	}

	return lines, errors.Wrap(rows.Err(), "could not read laps")
}
