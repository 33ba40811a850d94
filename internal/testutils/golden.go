package testutils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// UpdateGoldenFilesEnv is the environment variable which, when set, regenerates golden files.
const UpdateGoldenFilesEnv = "TESTS_UPDATE_GOLDEN"

// LoadWithUpdateFromGoldenYAML loads the golden file for the current test into a value of
// the same type as got. When UpdateGoldenFilesEnv is set, the golden file is first
// rewritten from got.
//
// Golden files live under testdata/golden/<test name>, with subtest separators kept as
// directories.
func LoadWithUpdateFromGoldenYAML[T any](t *testing.T, got T) T {
	t.Helper()

	path := GoldenPath(t)

	if os.Getenv(UpdateGoldenFilesEnv) != "" {
		t.Logf("updating golden file %s", path)
		data, err := yaml.Marshal(got)
		require.NoError(t, err, "Cannot marshal golden data to YAML")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750), "Cannot create golden directory")
		require.NoError(t, os.WriteFile(path, data, 0600), "Cannot write golden file")
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err, "Cannot load golden file %s", path)

	var want T
	require.NoError(t, yaml.Unmarshal(data, &want), "Cannot unmarshal golden file %s", path)

	return want
}

// GoldenPath returns the golden file path for the current test.
func GoldenPath(t *testing.T) string {
	t.Helper()

	parts := strings.Split(t.Name(), "/")
	for i, p := range parts {
		parts[i] = normalizeName(p)
	}

	return filepath.Join(append([]string{"testdata", "golden"}, parts...)...)
}

// normalizeName makes a test name usable as a file name.
func normalizeName(name string) string {
	name = strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', ',', '\'', '"', '/', '\\':
			return '_'
		}
		return r
	}, name)
}
