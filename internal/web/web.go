package web

import (
	"encoding/json"
	"html/template"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/sirupsen/logrus"

	"justapengu.in/acstats/internal/store"
)

type Config struct {
	Address  string `json:"address" yaml:"address"`
	Database string `json:"database" yaml:"database"`
	// TrackNames maps track identifiers to display names. Unmapped tracks
	// fall back to underscore-to-space title casing.
	TrackNames map[string]string `json:"track_names" yaml:"track_names"`
}

func DefaultConfig() Config {
	return Config{
		Address:  ":8772",
		Database: "./data/ac_laptimes.db",
	}
}

// Store is the read-only view of lap data the display needs.
type Store interface {
	TopForTrack(track string, limit int) ([]store.LeaderboardLine, error)
	TopAllTracks() (map[string]store.LeaderboardLine, error)
	Tracks() ([]string, error)
	LapsForPlayer(player string) ([]store.LeaderboardLine, error)
	OverallLeaderboard(limit int) ([]store.PlayerStanding, error)
}

// Web serves the leaderboard pages and the JSON API. It never writes to the
// store.
type Web struct {
	cfg       Config
	store     Store
	logger    logrus.FieldLogger
	templates *template.Template
}

func New(cfg Config, laptimeStore Store, logger logrus.FieldLogger) (*Web, error) {
	h := &Web{
		cfg:    cfg,
		store:  laptimeStore,
		logger: logger,
	}

	if err := h.parseTemplates(); err != nil {
		return nil, err
	}

	return h, nil
}

func (h *Web) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(h.requestLogger)

	router.Get("/", h.home)
	router.Get("/leaderboard", h.leaderboard)

	router.Get("/api/top/{track}", h.apiTopForTrack)
	router.Get("/api/top_all", h.apiTopAllTracks)
	router.Get("/api/tracks", h.apiTracks)
	router.Get("/api/player/{player}", h.apiPlayerLaps)
	router.Get("/api/leaderboard", h.apiLeaderboard)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.logger.Debugf("Could not find HTTP response for URL: %s", r.URL.String())

		http.NotFound(w, r)
	})

	return router
}

func (h *Web) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.logger.WithFields(logrus.Fields{
			"ip":  r.RemoteAddr,
			"xff": r.Header.Get("X-Forwarded-For"),
			"ua":  r.UserAgent(),
		}).Debugf("%s %s", r.Method, r.URL.String())

		next.ServeHTTP(w, r)
	})
}

func (h *Web) displayTrackName(trackID string) string {
	if name, ok := h.cfg.TrackNames[trackID]; ok {
		return name
	}

	return titleCase(strings.ReplaceAll(trackID, "_", " "))
}

func titleCase(s string) string {
	words := strings.Fields(s)

	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
	}

	return strings.Join(words, " ")
}

type trackPageData struct {
	TrackID   string
	TrackName string
	Best      store.LeaderboardLine
}

func (h *Web) home(w http.ResponseWriter, r *http.Request) {
	best, err := h.store.TopAllTracks()

	if err != nil {
		h.serverError(w, err)

		return
	}

	rows := make([]trackPageData, 0, len(best))

	for trackID, line := range best {
		rows = append(rows, trackPageData{
			TrackID:   trackID,
			TrackName: h.displayTrackName(trackID),
			Best:      line,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].TrackName < rows[j].TrackName
	})

	h.render(w, "home.html", map[string]interface{}{
		"Rows": rows,
	})
}

func (h *Web) leaderboard(w http.ResponseWriter, r *http.Request) {
	standings, err := h.store.OverallLeaderboard(queryLimit(r, 50))

	if err != nil {
		h.serverError(w, err)

		return
	}

	track := r.URL.Query().Get("track")

	var trackLaps []store.LeaderboardLine

	if track != "" {
		trackLaps, err = h.store.TopForTrack(track, 100)

		if err != nil {
			h.serverError(w, err)

			return
		}
	}

	tracks, err := h.store.Tracks()

	if err != nil {
		h.serverError(w, err)

		return
	}

	h.render(w, "leaderboard.html", map[string]interface{}{
		"Standings":     standings,
		"Tracks":        tracks,
		"SelectedTrack": track,
		"TrackLaps":     trackLaps,
	})
}

type lapResponse struct {
	Player    string    `json:"player"`
	Car       string    `json:"car"`
	Track     string    `json:"track"`
	TrackName string    `json:"track_name"`
	LapTimeMs int64     `json:"laptime_ms"`
	LapTime   string    `json:"laptime"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Web) lapResponse(line store.LeaderboardLine) lapResponse {
	return lapResponse{
		Player:    line.Player,
		Car:       line.Car,
		Track:     line.Track,
		TrackName: h.displayTrackName(line.Track),
		LapTimeMs: line.LapTimeMs,
		LapTime:   line.LapTime(),
		Timestamp: line.Timestamp,
	}
}

func (h *Web) apiTopForTrack(w http.ResponseWriter, r *http.Request) {
	laps, err := h.store.TopForTrack(chi.URLParam(r, "track"), queryLimit(r, 100))

	if err != nil {
		h.serverError(w, err)

		return
	}

	response := make([]lapResponse, 0, len(laps))

	for _, lap := range laps {
		response = append(response, h.lapResponse(lap))
	}

	h.renderJSON(w, response)
}

func (h *Web) apiTopAllTracks(w http.ResponseWriter, r *http.Request) {
	best, err := h.store.TopAllTracks()

	if err != nil {
		h.serverError(w, err)

		return
	}

	response := make(map[string]lapResponse, len(best))

	for trackID, line := range best {
		response[trackID] = h.lapResponse(line)
	}

	h.renderJSON(w, response)
}

type trackResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *Web) apiTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.store.Tracks()

	if err != nil {
		h.serverError(w, err)

		return
	}

	response := make([]trackResponse, 0, len(tracks))

	for _, track := range tracks {
		response = append(response, trackResponse{ID: track, Name: h.displayTrackName(track)})
	}

	h.renderJSON(w, response)
}

func (h *Web) apiPlayerLaps(w http.ResponseWriter, r *http.Request) {
	laps, err := h.store.LapsForPlayer(chi.URLParam(r, "player"))

	if err != nil {
		h.serverError(w, err)

		return
	}

	response := make([]lapResponse, 0, len(laps))

	for _, lap := range laps {
		response = append(response, h.lapResponse(lap))
	}

	h.renderJSON(w, response)
}

type standingResponse struct {
	Player      string `json:"player"`
	BestLapMs   int64  `json:"best_ms"`
	BestLapTime string `json:"best_laptime"`
	Laps        int    `json:"laps"`
}

func (h *Web) apiLeaderboard(w http.ResponseWriter, r *http.Request) {
	standings, err := h.store.OverallLeaderboard(queryLimit(r, 50))

	if err != nil {
		h.serverError(w, err)

		return
	}

	response := make([]standingResponse, 0, len(standings))

	for _, standing := range standings {
		response = append(response, standingResponse{
			Player:      standing.Player,
			BestLapMs:   standing.BestLapMs,
			BestLapTime: standing.BestLap(),
			Laps:        standing.Laps,
		})
	}

	h.renderJSON(w, response)
}

func queryLimit(r *http.Request, fallback int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))

	if err != nil || limit <= 0 {
		return fallback
	}

	return limit
}

func (h *Web) renderJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Errorf("Could not encode JSON response")
	}
}

func (h *Web) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.WithError(err).Errorf("Could not render template %s", name)
	}
}

func (h *Web) serverError(w http.ResponseWriter, err error) {
	h.logger.WithError(err).Errorf("Request failed")

	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
