package state

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// wholeFileLimit is the size up to which the content hash covers the
// entire file. Larger files are sampled: first and last segment
// concatenated.
const (
	wholeFileLimit = 2 << 20 // 2 MiB
	sampleSegment  = 1 << 20 // 1 MiB
)

// ContentHash computes the fast change-detection hash for a file.
// Files up to 2 MiB are hashed whole; larger files hash the first and
// last 1 MiB. This hash is for change filtering only — the analyzer
// computes its own SHA-256 over full content.
func ContentHash(path string) (uint64, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open for hashing: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("stat for hashing: %w", err)
	}
	size := info.Size()

	h := xxhash.New()
	if size <= wholeFileLimit {
		if _, err := io.Copy(h, f); err != nil {
			return 0, 0, fmt.Errorf("hash content: %w", err)
		}
		return h.Sum64(), size, nil
	}

	if _, err := io.CopyN(h, f, sampleSegment); err != nil {
		return 0, 0, fmt.Errorf("hash head segment: %w", err)
	}
	if _, err := f.Seek(size-sampleSegment, io.SeekStart); err != nil {
		return 0, 0, fmt.Errorf("seek tail segment: %w", err)
	}
	if _, err := io.CopyN(h, f, sampleSegment); err != nil && err != io.EOF {
		return 0, 0, fmt.Errorf("hash tail segment: %w", err)
	}
	return h.Sum64(), size, nil
}

// HashBytes hashes a byte slice with the same function used for file
// content. Exposed for tests and for hashing in-memory samples.
func HashBytes(b []byte) uint64 {
	return xxhash.Sum64(b)
}
