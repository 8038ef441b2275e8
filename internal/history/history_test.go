package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	return dir
}

func TestSave_SingleEntry(t *testing.T) {
	setupTestDir(t)

	err := Save(Entry{
		Source:   "notes.md",
		Model:    "deepseek-ai/DeepSeek-V3",
		Output:   "notes.html",
		Attempts: 2,
		Complete: true,
		Bytes:    5120,
		Success:  true,
	})
	require.NoError(t, err)

	entries, err := Load(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "notes.md", e.Source)
	assert.Equal(t, "notes.html", e.Output)
	assert.Equal(t, 2, e.Attempts)
	assert.True(t, e.Complete)
	assert.True(t, e.Success)
	assert.False(t, e.Timestamp.IsZero())
}

func TestSave_FileInConfigDir(t *testing.T) {
	home := setupTestDir(t)

	require.NoError(t, Save(Entry{Source: "a.txt", Success: true}))

	info, err := os.Stat(filepath.Join(home, ".doc2html", fileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSave_FailedEntry(t *testing.T) {
	setupTestDir(t)

	require.NoError(t, Save(Entry{Source: "a.docx", Error: "API request timed out", Success: false}))

	entries, err := Load(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "API request timed out", entries[0].Error)
	assert.Empty(t, entries[0].Output)
}

func TestSave_TrimsToMaxEntries(t *testing.T) {
	setupTestDir(t)

	for i := 0; i < maxEntries+10; i++ {
		require.NoError(t, Save(Entry{Source: "doc.md", Success: true}))
	}

	entries, err := Load(0)
	require.NoError(t, err)
	assert.Len(t, entries, maxEntries)
}

func TestLoad_WithLimit(t *testing.T) {
	setupTestDir(t)

	for i := 0; i < 20; i++ {
		require.NoError(t, Save(Entry{Source: "doc.md", Attempts: i, Success: true}))
	}

	entries, err := Load(5)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, 15, entries[0].Attempts, "the most recent entries are kept")
	assert.Equal(t, 19, entries[4].Attempts)
}

func TestLoad_NoFile(t *testing.T) {
	setupTestDir(t)

	entries, err := Load(10)
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestLoad_CorruptFile(t *testing.T) {
	home := setupTestDir(t)
	dir := filepath.Join(home, ".doc2html")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte("{not json"), 0o600))

	_, err := Load(10)
	assert.ErrorContains(t, err, "failed to parse history")
}
