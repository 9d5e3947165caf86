package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mdrun.log")
	logger, err := NewLogger(LoggingConfig{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	componentLogger := ComponentLogger(logger, "playbook")
	componentLogger.Info().Str("playbook", "site.yml").Msg("Classified input document")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, data)
	}
	if line["component"] != "playbook" {
		t.Errorf("component = %v, want playbook", line["component"])
	}
	if line["playbook"] != "site.yml" {
		t.Errorf("playbook = %v, want site.yml", line["playbook"])
	}
	if line["message"] != "Classified input document" {
		t.Errorf("message = %v", line["message"])
	}
}

func TestNewLoggerLevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mdrun.log")
	logger, err := NewLogger(LoggingConfig{Level: "warn", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info().Msg("below threshold")
	logger.Warn().Msg("at threshold")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if strings.Contains(string(data), "below threshold") {
		t.Errorf("info line written at warn level: %q", data)
	}
	if !strings.Contains(string(data), "at threshold") {
		t.Errorf("warn line missing: %q", data)
	}
}

func TestNewLoggerRejectsStdout(t *testing.T) {
	if _, err := NewLogger(LoggingConfig{Output: "stdout"}); err == nil {
		t.Fatal("NewLogger() must reject stdout output")
	}
}
