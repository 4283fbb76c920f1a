package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	store := NewSqliteStore(filepath.Join(t.TempDir(), "flights.sqlite"))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	runID, err := store.StartRun(ctx, "full", "udp://:14540", map[string]any{"variant": "full"})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	start := time.Now()
	steps := []Step{
		{Name: "connect", Status: StepOK, StartedAt: start, FinishedAt: start.Add(time.Second)},
		{Name: "battery_check", Status: StepSkipped, StartedAt: start, FinishedAt: start},
		{Name: "calibrate_sensors", Status: StepFailed, Error: "ErrCalibrationFailed", StartedAt: start, FinishedAt: start.Add(time.Minute)},
	}
	for _, step := range steps {
		if err := store.RecordStep(ctx, runID, step); err != nil {
			t.Fatalf("RecordStep failed: %v", err)
		}
	}

	if err := store.RecordPosition(ctx, runID, PositionSample{Timestamp: start, Latitude: 47.39, Longitude: 8.54, Altitude: 488.1, Roll: 1.5, Pitch: -2, Yaw: 90}); err != nil {
		t.Fatalf("RecordPosition failed: %v", err)
	}

	if err := store.FinishRun(ctx, runID, errors.New("step calibrate_sensors failed")); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	runs, err := store.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}

	run := runs[0]
	if run.Variant != "full" || run.Address != "udp://:14540" {
		t.Errorf("Unexpected run %+v", run)
	}
	if run.Config == nil || *run.Config != `{"variant":"full"}` {
		t.Errorf("Expected JSON config, got %v", run.Config)
	}
	if run.FinishedAt == nil {
		t.Errorf("Expected finished timestamp")
	}
	if run.Error == nil || *run.Error != "step calibrate_sensors failed" {
		t.Errorf("Expected run error, got %v", run.Error)
	}
	if run.Positions != 1 {
		t.Errorf("Expected 1 position, got %d", run.Positions)
	}
	if len(run.Steps) != 3 {
		t.Fatalf("Expected 3 steps, got %d", len(run.Steps))
	}
	for i, step := range run.Steps {
		if step.Name != steps[i].Name || step.Status != steps[i].Status || step.Error != steps[i].Error {
			t.Errorf("Step %d: expected %+v, got %+v", i, steps[i], step)
		}
	}

	positions, err := store.Positions(ctx, runID)
	if err != nil {
		t.Fatalf("Positions failed: %v", err)
	}
	if len(positions) != 1 || positions[0].Altitude != 488.1 {
		t.Fatalf("Unexpected positions %+v", positions)
	}
	if p := positions[0]; p.Roll != 1.5 || p.Pitch != -2 || p.Yaw != 90 {
		t.Errorf("Expected attitude 1.5/-2/90, got %v/%v/%v", p.Roll, p.Pitch, p.Yaw)
	}
}

func TestSuccessfulRunHasNoError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	runID, err := store.StartRun(ctx, "basic", "udp://:14540", nil)
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if err := store.FinishRun(ctx, runID, nil); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	runs, err := store.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if runs[0].Error != nil || runs[0].Config != nil {
		t.Errorf("Expected no error and no config, got %+v", runs[0])
	}
}

func TestFinishUnknownRun(t *testing.T) {
	store := newTestStore(t)
	if err := store.FinishRun(context.Background(), 42, nil); err == nil {
		t.Error("Expected error finishing unknown run")
	}
}

func TestOpenSqliteStoreRequiresExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.sqlite")

	if _, err := OpenSqliteStore(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Expected os.ErrNotExist, got %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected no database file to be created, got %v", err)
	}

	created := NewSqliteStore(path)
	if _, err := created.StartRun(context.Background(), "full", "udp://:14540", nil); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	_ = created.Close()

	store, err := OpenSqliteStore(path)
	if err != nil {
		t.Fatalf("Expected existing database to open, got %v", err)
	}
	defer store.Close()

	runs, err := store.Runs(context.Background())
	if err != nil || len(runs) != 1 {
		t.Errorf("Expected 1 run, got %d (%v)", len(runs), err)
	}
}
