package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"justapengu.in/acstats/internal/store"
)

func seededHandler(t *testing.T) *Web {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "laptimes.db"), logrus.New())

	if err != nil {
		t.Fatalf("could not open store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	laps := []store.LapRecord{
		{Driver: "Alice", Car: "GT3", Track: "ks_monza", LapTime: 92345 * time.Millisecond, Timestamp: time.Now()},
		{Driver: "Bob", Car: "GT3", Track: "ks_monza", LapTime: 91500 * time.Millisecond, Timestamp: time.Now()},
		{Driver: "Alice", Car: "MX5", Track: "ks_brands_hatch", LapTime: 80250 * time.Millisecond, Timestamp: time.Now()},
	}

	for _, lap := range laps {
		if err := s.InsertLap(lap, "", 0); err != nil {
			t.Fatalf("could not seed lap: %v", err)
		}
	}

	cfg := DefaultConfig()
	cfg.TrackNames = map[string]string{"ks_monza": "Monza"}

	handler, err := New(cfg, s, logrus.New())

	if err != nil {
		t.Fatalf("could not build web handler: %v", err)
	}

	return handler
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))

	return recorder
}

func TestHomePage(t *testing.T) {
	router := seededHandler(t).Router()

	response := get(t, router, "/")

	if response.Code != http.StatusOK {
		t.Fatalf("GET / = %d", response.Code)
	}

	body := response.Body.String()

	for _, expected := range []string{"Monza", "Ks Brands Hatch", "Bob", "1:31.500"} {
		if !strings.Contains(body, expected) {
			t.Errorf("home page is missing %q", expected)
		}
	}
}

func TestLeaderboardPage(t *testing.T) {
	router := seededHandler(t).Router()

	response := get(t, router, "/leaderboard?track=ks_monza")

	if response.Code != http.StatusOK {
		t.Fatalf("GET /leaderboard = %d", response.Code)
	}

	body := response.Body.String()

	if !strings.Contains(body, "Monza") || !strings.Contains(body, "Alice") {
		t.Error("leaderboard page is missing expected content")
	}
}

func TestAPITopForTrack(t *testing.T) {
	router := seededHandler(t).Router()

	response := get(t, router, "/api/top/ks_monza")

	if response.Code != http.StatusOK {
		t.Fatalf("GET /api/top/ks_monza = %d", response.Code)
	}

	var laps []lapResponse

	if err := json.Unmarshal(response.Body.Bytes(), &laps); err != nil {
		t.Fatalf("could not decode response: %v", err)
	}

	if len(laps) != 2 {
		t.Fatalf("got %d laps, expected 2", len(laps))
	}

	if laps[0].Player != "Bob" || laps[0].LapTime != "1:31.500" || laps[0].TrackName != "Monza" {
		t.Errorf("top lap = %+v", laps[0])
	}
}

func TestAPITracks(t *testing.T) {
	router := seededHandler(t).Router()

	response := get(t, router, "/api/tracks")

	if response.Code != http.StatusOK {
		t.Fatalf("GET /api/tracks = %d", response.Code)
	}

	var tracks []trackResponse

	if err := json.Unmarshal(response.Body.Bytes(), &tracks); err != nil {
		t.Fatalf("could not decode response: %v", err)
	}

	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, expected 2", len(tracks))
	}

	if tracks[1].ID != "ks_monza" || tracks[1].Name != "Monza" {
		t.Errorf("track = %+v, expected the configured display name", tracks[1])
	}

	if tracks[0].Name != "Ks Brands Hatch" {
		t.Errorf("track = %+v, expected the title-cased fallback name", tracks[0])
	}
}

func TestAPIPlayerLaps(t *testing.T) {
	router := seededHandler(t).Router()

	response := get(t, router, "/api/player/Alice")

	if response.Code != http.StatusOK {
		t.Fatalf("GET /api/player/Alice = %d", response.Code)
	}

	var laps []lapResponse

	if err := json.Unmarshal(response.Body.Bytes(), &laps); err != nil {
		t.Fatalf("could not decode response: %v", err)
	}

	if len(laps) != 2 {
		t.Fatalf("got %d laps, expected 2", len(laps))
	}

	// Fastest first.
	if laps[0].Track != "ks_brands_hatch" {
		t.Errorf("first lap = %+v, expected the Brands Hatch lap", laps[0])
	}
}

func TestAPILeaderboard(t *testing.T) {
	router := seededHandler(t).Router()

	response := get(t, router, "/api/leaderboard?limit=1")

	if response.Code != http.StatusOK {
		t.Fatalf("GET /api/leaderboard = %d", response.Code)
	}

	var standings []standingResponse

	if err := json.Unmarshal(response.Body.Bytes(), &standings); err != nil {
		t.Fatalf("could not decode response: %v", err)
	}

	if len(standings) != 1 {
		t.Fatalf("got %d standings, expected the limit to apply", len(standings))
	}

	if standings[0].Player != "Alice" || standings[0].BestLapTime != "1:20.250" {
		t.Errorf("standing = %+v, expected Alice at 1:20.250", standings[0])
	}
}

func TestNotFound(t *testing.T) {
	router := seededHandler(t).Router()

	if response := get(t, router, "/nope"); response.Code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, expected 404", response.Code)
	}
}
