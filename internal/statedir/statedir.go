// Package statedir manages the per-user persisted-state directory the CLI
// reads and writes: settings, schedule definitions, the deletion-audit
// JSONL log, research/PRD scratch files, and the heartbeat checklist. None
// of this is consulted by the core engine packages (coordinator,
// consolidation, repoingest) — it exists purely for the CLI layer,
// following the same JSON-file config/settings convention
// (encoding/json, os.UserHomeDir) used elsewhere in this codebase rather
// than introducing a database dependency for what amounts to plain files.
package statedir

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const envHomeOverride = "ULTRAMEMORY_HOME"

// Dir resolves the persisted-state root: $ULTRAMEMORY_HOME if set, else
// ~/.ulmemory.
func Dir() (string, error) {
	if v := os.Getenv(envHomeOverride); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".ulmemory"), nil
}

// EnsureLayout creates every directory this state layout needs, if missing.
func EnsureLayout() (string, error) {
	root, err := Dir()
	if err != nil {
		return "", err
	}
	for _, sub := range []string{"schedules", "logs", "research/reports", "prds", "agents"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return "", fmt.Errorf("creating %s: %w", sub, err)
		}
	}
	return root, nil
}

// Settings is the global configuration file, settings.json.
type Settings struct {
	DefaultCategory string            `json:"default_category,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

func settingsPath(root string) string { return filepath.Join(root, "settings.json") }

// ReadSettings loads settings.json, returning zero-value Settings if the file
// doesn't exist yet.
func ReadSettings(root string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(settingsPath(root))
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("reading settings.json: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parsing settings.json: %w", err)
	}
	return s, nil
}

// WriteSettings persists settings.json.
func WriteSettings(root string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings.json: %w", err)
	}
	return os.WriteFile(settingsPath(root), data, 0o644)
}

// ScheduleRecord is one entry of schedules/tasks.json — the JSON-file mirror
// of a registry.Schedule row, kept alongside the Postgres table so schedule
// definitions remain a plain, human-browsable file as well as a durable row.
type ScheduleRecord struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Agent     string     `json:"agent"`
	Cron      string     `json:"cron"`
	Args      string     `json:"args"`
	Enabled   bool       `json:"enabled"`
	Created   time.Time  `json:"created"`
	LastRun   *time.Time `json:"last_run,omitempty"`
}

func tasksPath(root string) string { return filepath.Join(root, "schedules", "tasks.json") }

// LoadSchedules reads schedules/tasks.json, returning an empty slice if the
// file doesn't exist yet.
func LoadSchedules(root string) ([]ScheduleRecord, error) {
	data, err := os.ReadFile(tasksPath(root))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading schedules/tasks.json: %w", err)
	}
	var records []ScheduleRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing schedules/tasks.json: %w", err)
	}
	return records, nil
}

// SaveSchedules overwrites schedules/tasks.json with records.
func SaveSchedules(root string, records []ScheduleRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding schedules/tasks.json: %w", err)
	}
	return os.WriteFile(tasksPath(root), data, 0o644)
}

// DeletionLogEntry is one line of logs/deletions.jsonl.
type DeletionLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	DocumentID string    `json:"document_id"`
	Action     string    `json:"action"`
	Status     string    `json:"status"`
	ReplacedBy string    `json:"replaced_by,omitempty"`
}

// AppendDeletionLog appends one JSON line to logs/deletions.jsonl — the
// file-based counterpart to registry.DeletionAuditRepository's Postgres row.
func AppendDeletionLog(root string, e DeletionLogEntry) error {
	f, err := os.OpenFile(filepath.Join(root, "logs", "deletions.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening deletions.jsonl: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding deletion log entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing deletions.jsonl: %w", err)
	}
	return nil
}

// AppendHeartbeatTask adds one unchecked checklist line to heartbeat.md,
// creating the file with a header if it doesn't exist yet.
func AppendHeartbeatTask(root, title, tag string) error {
	path := filepath.Join(root, "heartbeat.md")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("# Heartbeat\n\n"), 0o644); err != nil {
			return fmt.Errorf("creating heartbeat.md: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening heartbeat.md: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("- [ ] %s", title)
	if tag != "" {
		line += " #" + tag
	}
	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}
	return w.Flush()
}
