package environment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/agent-relay/pkg/paths"
)

type KeyValuePair struct {
	Key   string
	Value string
}

// EnvFilesProvider serves the variables of one or more env files. Later files
// override earlier ones.
type EnvFilesProvider struct {
	values map[string]string
}

func NewEnvFilesProvider(absolutePaths []string) (*EnvFilesProvider, error) {
	pairs, err := ReadEnvFiles(absolutePaths)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		values[pair.Key] = pair.Value
	}
	return &EnvFilesProvider{values: values}, nil
}

func (p *EnvFilesProvider) Get(_ context.Context, name string) (string, bool) {
	value, ok := p.values[name]
	return value, ok
}

func AbsolutePaths(parentDir string, relOrAbsPaths []string) ([]string, error) {
	var absPaths []string

	for _, relOrAbsPath := range relOrAbsPaths {
		absPath, err := AbsolutePath(parentDir, relOrAbsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %s: %w", relOrAbsPath, err)
		}
		absPaths = append(absPaths, absPath)
	}

	return absPaths, nil
}

func AbsolutePath(parentDir, relOrAbsPath string) (string, error) {
	p, err := expandTildePath(relOrAbsPath)
	if err != nil {
		return "", err
	}

	if strings.Contains(relOrAbsPath, "..") {
		return "", fmt.Errorf("invalid environment file path: path contains directory traversal sequences")
	}

	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	return filepath.Join(parentDir, p), nil
}

// expandTildePath expands ~ in file paths to the user's home directory
func expandTildePath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}

	homeDir := paths.GetHomeDir()
	if homeDir == "" {
		return "", fmt.Errorf("failed to get user home directory")
	}

	if p == "~" {
		return homeDir, nil
	}

	if strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDir, p[2:]), nil
	}

	return "", fmt.Errorf("unsupported tilde expansion format: %s", p)
}

func ReadEnvFiles(absolutePaths []string) ([]KeyValuePair, error) {
	if len(absolutePaths) == 0 {
		return nil, nil
	}

	var allLines []KeyValuePair

	for _, absolutePath := range absolutePaths {
		lines, err := ReadEnvFile(absolutePath)
		if err != nil {
			return nil, err
		}
		allLines = append(allLines, lines...)
	}

	return allLines, nil
}

func ReadEnvFile(absolutePath string) ([]KeyValuePair, error) {
	buf, err := os.ReadFile(absolutePath)
	if err != nil {
		return nil, err
	}

	var lines []KeyValuePair

	for line := range strings.SplitSeq(string(buf), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		k, v, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			return nil, fmt.Errorf("invalid env file line in %s: %s", absolutePath, line)
		}

		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)

		if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
			v = v[1 : len(v)-1]
		}

		lines = append(lines, KeyValuePair{
			Key:   k,
			Value: v,
		})
	}

	return lines, nil
}
