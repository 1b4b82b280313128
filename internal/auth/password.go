package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
)

// PasswordFile stores the single device password hash on disk. First run has
// no password; the first SetPassword call claims the server.
type PasswordFile struct {
	path string
	mu   sync.Mutex
}

// NewPasswordFile creates a password file handle under the data directory.
func NewPasswordFile(dataPath string) *PasswordFile {
	return &PasswordFile{path: filepath.Join(dataPath, "password.hash")}
}

// IsSet reports whether a device password has been configured.
func (p *PasswordFile) IsSet() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := os.Stat(p.path)
	return err == nil
}

// SetPassword configures the device password. Changing an existing password
// requires the current one.
func (p *PasswordFile) SetPassword(current, next string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, err := p.read()
	if err != nil {
		return err
	}
	if existing != "" {
		ok, err := VerifyPassword(existing, current)
		if err != nil {
			return err
		}
		if !ok {
			return domainerrors.Unauthorized("current password is incorrect")
		}
	}

	hash, err := HashPassword(next)
	if err != nil {
		return domainerrors.Validation(err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(hash), 0o600); err != nil {
		return fmt.Errorf("write password hash: %w", err)
	}
	return nil
}

// Verify checks a login attempt against the stored hash.
func (p *PasswordFile) Verify(password string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash, err := p.read()
	if err != nil {
		return false, err
	}
	if hash == "" {
		return false, domainerrors.Unauthorized("no device password configured yet")
	}
	return VerifyPassword(hash, password)
}

func (p *PasswordFile) read() (string, error) {
	data, err := os.ReadFile(p.path) //#nosec G304 -- path is under the configured data dir
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read password hash: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
