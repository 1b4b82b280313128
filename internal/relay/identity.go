package relay

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
)

// Identity supplies the authenticated public identifier and signing
// capability for publish operations. Wallet-backed identities implement the
// same interface; the sync subsystem never sees key material directly.
type Identity interface {
	// PublicKey returns the hex-encoded public identity.
	PublicKey() string
	// Sign signs an event ID, returning the hex-encoded signature.
	Sign(eventID string) (string, error)
}

// ValidatePublicKey checks that a spectate target or author identifier is a
// well-formed hex-encoded 32-byte public key.
func ValidatePublicKey(s string) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return domainerrors.Validation("public identity must be hex encoded").WithCause(err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return domainerrors.Validationf("public identity must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return nil
}

// LocalIdentity is an ed25519 keypair stored on disk, used when no external
// wallet supplies the identity.
type LocalIdentity struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// PublicKey implements Identity.
func (l *LocalIdentity) PublicKey() string {
	return hex.EncodeToString(l.pub)
}

// Sign implements Identity.
func (l *LocalIdentity) Sign(eventID string) (string, error) {
	raw, err := hex.DecodeString(eventID)
	if err != nil {
		return "", fmt.Errorf("decode event id: %w", err)
	}
	return hex.EncodeToString(ed25519.Sign(l.priv, raw)), nil
}

// NewLocalIdentity generates a fresh keypair.
func NewLocalIdentity() (*LocalIdentity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate identity key: %w", err)
	}
	return &LocalIdentity{pub: pub, priv: priv}, nil
}

// LoadOrGenerateIdentity reads the identity seed from dir/identity.key,
// generating and persisting one on first run.
func LoadOrGenerateIdentity(dir string) (*LocalIdentity, error) {
	path := filepath.Join(dir, "identity.key")

	data, err := os.ReadFile(path) //#nosec G304 -- path is under the configured data dir
	if err == nil {
		seed, err := hex.DecodeString(string(data))
		if err != nil || len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("corrupt identity key file %s", path)
		}
		priv := ed25519.NewKeyFromSeed(seed)
		return &LocalIdentity{pub: priv.Public().(ed25519.PublicKey), priv: priv}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read identity key: %w", err)
	}

	identity, err := NewLocalIdentity()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create identity dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(identity.priv.Seed())), 0o600); err != nil {
		return nil, fmt.Errorf("write identity key: %w", err)
	}
	return identity, nil
}
