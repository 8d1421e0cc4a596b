package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"justapengu.in/acstats/internal/store"
)

// Feeding the same log content through a simulated restart must produce no
// duplicate records: the bookmark stored with each line means the reader
// resumes exactly where it left off.
func TestRestartProducesNoDuplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "output_session.log")

	content := "TRACK=ks_monza\n" +
		"REQUESTED CAR: GT3\n" +
		"DRIVER ACCEPTED FOR CAR Alice\n" +
		"LAP Alice 1:32.345\n" +
		"Cuts: 0\n"

	appendToFile(t, path, content)

	laptimeStore, err := store.Open(filepath.Join(dir, "laptimes.db"), logrus.New())

	if err != nil {
		t.Fatalf("could not open store: %v", err)
	}

	defer laptimeStore.Close()

	runUntilIdle := func() {
		ctx, cfn := context.WithCancel(context.Background())
		defer cfn()

		offset, err := laptimeStore.Offset(path)

		if err != nil {
			t.Fatalf("could not load offset: %v", err)
		}

		pipeline := newTestPipeline(t, laptimeStore)
		reader := NewTailReader(path, offset, 10*time.Millisecond, logrus.New())

		lines := make(chan Line)
		done := make(chan struct{})

		go func() {
			defer close(lines)

			_ = reader.Run(ctx, lines)
		}()

		go func() {
			defer close(done)

			pipeline.Run(ctx, lines)
		}()

		// Idle once the durable bookmark reaches the end of the file.
		deadline := time.After(5 * time.Second)

		for {
			committed, err := laptimeStore.Offset(path)

			if err != nil {
				t.Fatalf("could not poll offset: %v", err)
			}

			if committed == int64(len(content)) {
				break
			}

			select {
			case <-deadline:
				t.Fatal("pipeline never caught up with the log")
			case <-time.After(10 * time.Millisecond):
			}
		}

		// Leave the tail running briefly so any erroneous re-read would
		// have time to show up as duplicate rows.
		time.Sleep(100 * time.Millisecond)

		cfn()
		<-done
	}

	lapCount := func() int {
		laps, err := laptimeStore.LapsForPlayer("Alice")

		if err != nil {
			t.Fatalf("could not query laps: %v", err)
		}

		return len(laps)
	}

	runUntilIdle()

	if count := lapCount(); count != 1 {
		t.Fatalf("found %d laps after first run, expected 1", count)
	}

	// Restart: same file, same store. Nothing new to read, nothing new
	// persisted.
	runUntilIdle()

	if count := lapCount(); count != 1 {
		t.Errorf("found %d laps after restart, expected no duplicates", count)
	}
}
