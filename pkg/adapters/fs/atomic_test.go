package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeString(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func TestReplaceFileAtomic(t *testing.T) {
	t.Run("Creates New File", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "seen.list")

		require.NoError(t, replaceFileAtomic(filename, 0644, writeString("t3_a,stream,1\n")))

		got, err := os.ReadFile(filename)
		require.NoError(t, err)
		assert.Equal(t, "t3_a,stream,1\n", string(got))
	})

	t.Run("Overwrites Existing File", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "seen.list")
		require.NoError(t, os.WriteFile(filename, []byte("old\nold\n"), 0644))

		require.NoError(t, replaceFileAtomic(filename, 0644, writeString("new\n")))

		got, err := os.ReadFile(filename)
		require.NoError(t, err)
		assert.Equal(t, "new\n", string(got))
	})

	t.Run("Failed Write Keeps Original", func(t *testing.T) {
		dir := t.TempDir()
		filename := filepath.Join(dir, "seen.list")
		require.NoError(t, os.WriteFile(filename, []byte("keep\n"), 0644))

		err := replaceFileAtomic(filename, 0644, func(w io.Writer) error {
			_, _ = io.WriteString(w, "partial")
			return errors.New("boom")
		})
		require.Error(t, err)

		got, err := os.ReadFile(filename)
		require.NoError(t, err)
		assert.Equal(t, "keep\n", string(got))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasPrefix(e.Name(), TempFilePrefix), "temp file left behind: %s", e.Name())
		}
	})

	t.Run("Fails if Directory Missing", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "missing", "seen.list")
		assert.Error(t, replaceFileAtomic(filename, 0644, writeString("x")))
	})
}
