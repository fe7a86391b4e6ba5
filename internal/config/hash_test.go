package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceDigests(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "base.yaml")
	second := filepath.Join(dir, "override.yaml")
	require.NoError(t, os.WriteFile(first, []byte("hail: {}\n"), 0600))
	require.NoError(t, os.WriteFile(second, []byte("workflow: {}\n"), 0600))

	cfg := &Config{SourceFiles: []string{first, second}}
	digests, err := cfg.SourceDigests()
	require.NoError(t, err)
	require.Len(t, digests, 2)
	assert.Equal(t, first, digests[0].Path)
	assert.Equal(t, second, digests[1].Path)
	assert.Len(t, digests[0].Digest, 64)
	assert.NotEqual(t, digests[0].Digest, digests[1].Digest)

	again, err := cfg.SourceDigests()
	require.NoError(t, err)
	assert.Equal(t, digests, again)

	cfg.SourceFiles = append(cfg.SourceFiles, filepath.Join(dir, "missing.yaml"))
	_, err = cfg.SourceDigests()
	assert.Error(t, err)
}

func TestFingerprintIsOrderSensitive(t *testing.T) {
	a := fingerprint([][]byte{[]byte("ab"), []byte("c")})
	b := fingerprint([][]byte{[]byte("a"), []byte("bc")})
	c := fingerprint([][]byte{[]byte("ab"), []byte("c")})

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)
}
