package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
)

// SourceDigest is the BLAKE3 digest of one config file as it is on disk.
type SourceDigest struct {
	Path   string
	Digest string
}

// SourceDigests hashes each file the config was loaded from, in load order.
func (c *Config) SourceDigests() ([]SourceDigest, error) {
	out := make([]SourceDigest, 0, len(c.SourceFiles))
	for _, path := range c.SourceFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config source: %w", err)
		}
		sum := blake3.Sum256(data)
		out = append(out, SourceDigest{Path: path, Digest: hex.EncodeToString(sum[:])})
	}
	return out, nil
}

// fingerprint hashes the interpolated source documents in load order.
// Each document is length-prefixed so that moving bytes between files changes the digest.
func fingerprint(sources [][]byte) string {
	h := blake3.New()
	for _, src := range sources {
		fmt.Fprintf(h, "%d:", len(src))
		_, _ = h.Write(src)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ShortFingerprint returns the first 12 hex characters of the fingerprint.
func (c *Config) ShortFingerprint() string {
	if len(c.Fingerprint) <= 12 {
		return c.Fingerprint
	}
	return c.Fingerprint[:12]
}
