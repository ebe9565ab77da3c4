package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Algorithm selects the content hash used to compare files.
type Algorithm string

const (
	// AlgorithmBlake3 is the default. BLAKE3 is collision-resistant and
	// considerably faster than the SHA-2 family on large trees.
	AlgorithmBlake3 Algorithm = "blake3"
	// AlgorithmSHA256 matches what most external tooling prints, at the
	// cost of hashing speed.
	AlgorithmSHA256 Algorithm = "sha256"
)

// ParseAlgorithm validates a user-supplied algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AlgorithmBlake3, AlgorithmSHA256:
		return Algorithm(s), nil
	default:
		return "", fmt.Errorf("unknown hash algorithm %q (supported: blake3, sha256)", s)
	}
}

func (a Algorithm) newHash() hash.Hash {
	if a == AlgorithmSHA256 {
		return sha256.New()
	}
	return blake3.New()
}

// Hasher computes hex-encoded content digests of files.
type Hasher struct {
	algo Algorithm
}

// NewHasher creates a Hasher for the given algorithm. An empty algorithm
// selects BLAKE3.
func NewHasher(algo Algorithm) *Hasher {
	if algo == "" {
		algo = AlgorithmBlake3
	}
	return &Hasher{algo: algo}
}

// Algorithm returns the configured hash algorithm.
func (h *Hasher) Algorithm() Algorithm {
	return h.algo
}

// HashFile computes the digest of the file at path, reading it in 32 KiB
// chunks, and returns the hex-encoded result. Two files have equal
// digests exactly when their contents are equal.
func (h *Hasher) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	hs := h.algo.newHash()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(hs, f, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(hs.Sum(nil)), nil
}
