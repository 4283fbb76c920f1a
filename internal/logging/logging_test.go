package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"FlightCheck/internal/config"
)

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flightcheck.log")

	logger, err := New(config.LoggingConfig{Level: "info", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Infof("Command %s sent, attempt %d", "MAV_CMD_COMPONENT_ARM_DISARM", 1)
	logger.Debugf("not written at info level")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "MAV_CMD_COMPONENT_ARM_DISARM") {
		t.Errorf("Expected log line in file, got %q", data)
	}
	if strings.Contains(string(data), "not written") {
		t.Errorf("Expected debug line to be filtered")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Error("Expected error for unknown level")
	}
}
