package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFile_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")

	rf, err := NewRotatingFile(path, WithMaxSize(100), WithMaxBackups(2))
	require.NoError(t, err)
	defer rf.Close()

	data := []byte("hello world\n")
	n, err := rf.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, content)
}

func TestRotatingFile_Rotate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")

	rf, err := NewRotatingFile(path, WithMaxSize(50), WithMaxBackups(2))
	require.NoError(t, err)
	defer rf.Close()

	first := []byte(strings.Repeat("a", 30))
	second := []byte(strings.Repeat("b", 30))

	_, err = rf.Write(first)
	require.NoError(t, err)
	_, err = rf.Write(second)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, second, content)

	backup, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, first, backup)
}

func TestRotatingFile_MaxBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")

	rf, err := NewRotatingFile(path, WithMaxSize(20), WithMaxBackups(2))
	require.NoError(t, err)
	defer rf.Close()

	for i := range 4 {
		_, err = rf.Write([]byte(strings.Repeat(string(rune('a'+i)), 15)))
		require.NoError(t, err)
	}

	for _, name := range []string{path, path + ".1", path + ".2"} {
		_, err = os.Stat(name)
		require.NoError(t, err, "%s should exist", name)
	}

	_, err = os.Stat(path + ".3")
	require.True(t, os.IsNotExist(err), "backup .3 should not exist")

	newest, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("c", 15), string(newest))
}

func TestRotatingFile_OversizedWriteGoesToEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")

	rf, err := NewRotatingFile(path, WithMaxSize(10))
	require.NoError(t, err)
	defer rf.Close()

	_, err = rf.Write([]byte(strings.Repeat("x", 25)))
	require.NoError(t, err)

	_, err = os.Stat(path + ".1")
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingFile_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	require.NoError(t, os.WriteFile(path, []byte("existing\n"), 0o600))

	rf, err := NewRotatingFile(path, WithMaxSize(1000), WithMaxBackups(2))
	require.NoError(t, err)
	defer rf.Close()

	_, err = rf.Write([]byte("new\n"))
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "existing\nnew\n", string(content))
}

func TestRotatingFile_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "nested", "relay.log")

	rf, err := NewRotatingFile(path)
	require.NoError(t, err)
	defer rf.Close()

	_, err = rf.Write([]byte("test"))
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)
}
