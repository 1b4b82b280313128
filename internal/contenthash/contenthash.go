// Package contenthash derives the content-addressable identity of an
// imported document: a SHA-256 digest of the raw bytes, independent of
// filename or metadata. The digest doubles as the book's publishable
// identifier, the cross-user de-duplication key, and the verification check
// when completing a ghost book with uploaded content.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/shelfmark/shelfmark-server/internal/errors"
)

// DigestLength is the length of a hex-encoded SHA-256 digest.
const DigestLength = 64

// Compute returns the lowercase hex SHA-256 digest of the reader's content.
func Compute(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeBytes returns the lowercase hex SHA-256 digest of the given bytes.
func ComputeBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Valid reports whether s looks like a hex SHA-256 digest.
func Valid(s string) bool {
	if len(s) != DigestLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// VerifyBytes checks uploaded content against a recorded digest, returning a
// HASH_MISMATCH domain error when they differ. The caller's store must stay
// untouched on error.
func VerifyBytes(data []byte, want string) error {
	got := ComputeBytes(data)
	if got != want {
		return errors.HashMismatch("uploaded content does not match the recorded digest").
			WithDetails(map[string]string{"expected": want, "computed": got})
	}
	return nil
}
