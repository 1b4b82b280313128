package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := VerifyPassword(hash, "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword(hash, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPassword_Limits(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)

	_, err = HashPassword(strings.Repeat("a", 1025))
	assert.Error(t, err)
}

func TestVerifyPassword_CorruptHash(t *testing.T) {
	// A corrupt stored hash reads as a failed match, never an error.
	ok, err := VerifyPassword("not-an-encoded-hash", "anything")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = VerifyPassword("$argon2id$v=19$m=65536,t=3,p=4$!!!$!!!", "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	a, err := HashPassword("same password")
	require.NoError(t, err)
	b, err := HashPassword("same password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestTokenRoundTrip(t *testing.T) {
	key, err := LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)

	svc, err := NewTokenService(key, time.Hour)
	require.NoError(t, err)

	identity := strings.Repeat("ab", 32)
	token, err := svc.GenerateToken(identity)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "v4.local."))

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, identity, claims.Identity)
	assert.Equal(t, identity, claims.Subject)
	assert.Equal(t, "shelfmark-server", claims.Issuer)
	assert.NotEmpty(t, claims.TokenID)
}

func TestVerifyToken_Rejections(t *testing.T) {
	key, err := LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)

	svc, err := NewTokenService(key, time.Hour)
	require.NoError(t, err)

	_, err = svc.VerifyToken("v4.local.garbage")
	assert.Error(t, err)

	// A token from a different key does not verify.
	otherKey, err := LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)
	other, err := NewTokenService(otherKey, time.Hour)
	require.NoError(t, err)

	token, err := other.GenerateToken(strings.Repeat("ab", 32))
	require.NoError(t, err)
	_, err = svc.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyToken_Expired(t *testing.T) {
	key, err := LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)

	svc, err := NewTokenService(key, -time.Minute)
	require.NoError(t, err)

	token, err := svc.GenerateToken(strings.Repeat("ab", 32))
	require.NoError(t, err)

	_, err = svc.VerifyToken(token)
	assert.Error(t, err)
}

func TestNewTokenService_RequiresProperKey(t *testing.T) {
	_, err := NewTokenService([]byte("short"), time.Hour)
	assert.Error(t, err)
}

func TestLoadOrGenerateKey_Persists(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	require.Len(t, first, 32)

	second, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second, "restarts keep sessions valid")
}

func TestPasswordFile(t *testing.T) {
	pf := NewPasswordFile(t.TempDir())
	assert.False(t, pf.IsSet())

	// First run claims the server without a current password.
	require.NoError(t, pf.SetPassword("", "my-reading-den"))
	assert.True(t, pf.IsSet())

	ok, err := pf.Verify("my-reading-den")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = pf.Verify("nope")
	require.NoError(t, err)
	assert.False(t, ok)

	// Changing requires the current password.
	err = pf.SetPassword("wrong", "new-password")
	assert.Error(t, err)

	require.NoError(t, pf.SetPassword("my-reading-den", "new-password"))
	ok, err = pf.Verify("new-password")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPasswordFile_VerifyBeforeSet(t *testing.T) {
	pf := NewPasswordFile(t.TempDir())

	_, err := pf.Verify("anything")
	assert.Error(t, err)
}
