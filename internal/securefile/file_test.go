package securefile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")
	require.NoError(t, WriteJSON(path, doc{Name: "a", Count: 2}))

	got, err := ReadJSON[doc](path)
	require.NoError(t, err)
	assert.Equal(t, doc{Name: "a", Count: 2}, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = ReadJSON[doc](filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSealedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sealed.json")
	require.NoError(t, WriteSealedJSON(path, doc{Name: "secret"}, []byte("hunter2")))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")

	got, err := ReadSealedJSON[doc](path, []byte("hunter2"))
	require.NoError(t, err)
	assert.Equal(t, "secret", got.Name)

	_, err = ReadSealedJSON[doc](path, []byte("wrong"))
	assert.ErrorIs(t, err, ErrSealBroken)

	moved := filepath.Join(t.TempDir(), "moved.json")
	require.NoError(t, os.WriteFile(moved, raw, 0o600))
	_, err = ReadSealedJSON[doc](moved, []byte("hunter2"))
	assert.ErrorIs(t, err, ErrSealBroken)

	assert.Error(t, WriteSealedJSON(path, doc{}, nil))
}

func TestConfigPathCandidates(t *testing.T) {
	t.Setenv("SNAP_REAL_HOME", "")
	t.Setenv("HOME", "/home/tester")
	t.Setenv("QD_ENV", "local")

	paths, err := ConfigPathCandidates("quantum-dapp", "preferences.json")
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	assert.Equal(t, filepath.Join("/home/tester", ".config", "quantum-dapp", "local", "preferences.json"), paths[0])

	t.Setenv("QD_ENV", "staging")
	_, err = ConfigPathCandidates("quantum-dapp", "preferences.json")
	assert.Error(t, err)
}
