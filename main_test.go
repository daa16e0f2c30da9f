package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"ask", "title", "quiz", "cards"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
	ask, _, err := root.Find([]string{"ask"})
	require.NoError(t, err)
	assert.NotNil(t, ask.Flags().Lookup("reasoning"))
	assert.NotNil(t, ask.Flags().Lookup("context-file"))
}

func TestReadMaterial(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(notes, []byte("# Cells\nMitochondria make ATP.\n"), 0o600))

	got, err := readMaterial(notes)
	require.NoError(t, err)
	assert.Contains(t, got, "Mitochondria")

	empty := filepath.Join(dir, "empty.md")
	require.NoError(t, os.WriteFile(empty, []byte(" \n"), 0o600))
	_, err = readMaterial(empty)
	assert.Error(t, err)

	_, err = readMaterial(filepath.Join(dir, "missing.md"))
	assert.Error(t, err)
}
