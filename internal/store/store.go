// Package store keeps generated pages on disk under random names.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const ext = ".html"

// ErrInvalidName is returned for names that are not <uuid>.html.
var ErrInvalidName = errors.New("invalid page name")

// Dir stores pages in a single directory.
type Dir struct {
	Root string
}

// Save writes page to a new file and returns its name.
func (d Dir) Save(page string) (string, error) {
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(d.Root, name), []byte(page), 0o644); err != nil {
		return "", fmt.Errorf("failed to save page: %w", err)
	}
	return name, nil
}

// Path returns the file path for a saved page name. Only names Save could
// have produced are accepted.
func (d Dir) Path(name string) (string, error) {
	id, ok := strings.CutSuffix(name, ext)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(d.Root, name), nil
}
