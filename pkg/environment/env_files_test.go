package environment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbsolutePath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name        string
		input       string
		expected    string
		expectError string
	}{
		{
			name:     "no tilde",
			input:    "/absolute/path",
			expected: "/absolute/path",
		},
		{
			name:     "relative path",
			input:    "relative/slack.env",
			expected: "/srv/relay/relative/slack.env",
		},
		{
			name:     "tilde only",
			input:    "~",
			expected: homeDir,
		},
		{
			name:     "tilde with slash",
			input:    "~/env/slack.env",
			expected: filepath.Join(homeDir, "env/slack.env"),
		},
		{
			name:        "unsupported tilde format",
			input:       "~user/path",
			expectError: "unsupported tilde expansion format",
		},
		{
			name:        "directory traversal",
			input:       "../secrets.env",
			expectError: "directory traversal",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result, err := AbsolutePath("/srv/relay", test.input)
			if test.expectError != "" {
				require.ErrorContains(t, err, test.expectError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, result)
		})
	}
}

func TestReadEnvFilesEmpty(t *testing.T) {
	lines, err := ReadEnvFiles([]string{})

	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestReadEnvFiles(t *testing.T) {
	temp := t.TempDir()
	write(t, filepath.Join(temp, ".env1"), "SLACK_BOT_TOKEN=xoxb-1\n# Comment\nexport AGENT_RELAY_LISTEN=:3000\n")
	write(t, filepath.Join(temp, ".env2"), "\n\nSLACK_SIGNING_SECRET=\"abc\"\nAGENT_RELAY_DEFAULT_AGENT='weather'\n")

	lines, err := ReadEnvFiles([]string{filepath.Join(temp, ".env1"), filepath.Join(temp, ".env2")})

	require.NoError(t, err)
	assert.Equal(t, []KeyValuePair{
		{Key: "SLACK_BOT_TOKEN", Value: "xoxb-1"},
		{Key: "AGENT_RELAY_LISTEN", Value: ":3000"},
		{Key: "SLACK_SIGNING_SECRET", Value: "abc"},
		{Key: "AGENT_RELAY_DEFAULT_AGENT", Value: "weather"},
	}, lines)
}

func TestReadEnvFileNotFound(t *testing.T) {
	temp := t.TempDir()

	lines, err := ReadEnvFile(filepath.Join(temp, ".notfound"))

	require.Error(t, err)
	assert.Empty(t, lines)
}

func TestReadEnvFileInvalid(t *testing.T) {
	temp := t.TempDir()
	write(t, filepath.Join(temp, ".invalid"), "The is not a valid env file")

	lines, err := ReadEnvFile(filepath.Join(temp, ".invalid"))

	require.Error(t, err)
	assert.Empty(t, lines)
}

func TestEnvFilesProviderLaterFilesWin(t *testing.T) {
	temp := t.TempDir()
	write(t, filepath.Join(temp, "base.env"), "A=1\nB=2\n")
	write(t, filepath.Join(temp, "local.env"), "B=3\nEMPTY=\n")

	provider, err := NewEnvFilesProvider([]string{filepath.Join(temp, "base.env"), filepath.Join(temp, "local.env")})
	require.NoError(t, err)

	value, found := provider.Get(t.Context(), "B")
	assert.True(t, found)
	assert.Equal(t, "3", value)

	value, found = provider.Get(t.Context(), "EMPTY")
	assert.True(t, found)
	assert.Empty(t, value)

	_, found = provider.Get(t.Context(), "MISSING")
	assert.False(t, found)
}

func TestDefaultProviderPrefersProcessEnvironment(t *testing.T) {
	temp := t.TempDir()
	write(t, filepath.Join(temp, ".env"), "AGENT_RELAY_TEST_A=file\nAGENT_RELAY_TEST_B=file\n")
	t.Setenv("AGENT_RELAY_TEST_A", "env")

	provider, err := NewDefaultProvider([]string{filepath.Join(temp, ".env")})
	require.NoError(t, err)

	value, _ := provider.Get(t.Context(), "AGENT_RELAY_TEST_A")
	assert.Equal(t, "env", value)

	value, _ = provider.Get(t.Context(), "AGENT_RELAY_TEST_B")
	assert.Equal(t, "file", value)
}

func write(t *testing.T, path, content string) {
	t.Helper()
	err := os.WriteFile(path, []byte(content), 0o644)
	require.NoError(t, err)
}
