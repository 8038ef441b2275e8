// Package history keeps a log of generation runs for doc2html.
// History is stored as a JSON file in the user's config directory.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arin/doc2html/internal/config"
)

const (
	fileName   = "history.json"
	maxEntries = 500
)

// fileMu guards concurrent access to the history file.
var fileMu sync.Mutex

// Entry is a single generation run.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`           // input file, or "-" / "(web)"
	Model     string    `json:"model"`
	Output    string    `json:"output,omitempty"` // where the page was written
	Attempts  int       `json:"attempts"`
	Complete  bool      `json:"complete"`
	Bytes     int       `json:"bytes"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

func historyPath() string {
	return filepath.Join(config.Dir(), fileName)
}

// Save appends a new entry to the history file.
func Save(entry Entry) error {
	fileMu.Lock()
	defer fileMu.Unlock()

	entry.Timestamp = time.Now()

	entries, _ := loadAll()
	entries = append(entries, entry)

	// Keep the most recent.
	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}

	if err := os.MkdirAll(config.Dir(), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(historyPath(), data, 0o600)
}

// Load returns the most recent n history entries. A limit of 0 returns all.
func Load(limit int) ([]Entry, error) {
	entries, err := loadAll()
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	return entries, nil
}

func loadAll() ([]Entry, error) {
	data, err := os.ReadFile(historyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}

	return entries, nil
}
