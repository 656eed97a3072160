// internal/auth/session_test.go
package auth

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	Init()

	id := uuid.NewString()
	token, err := CreateJWT(id)
	require.NoError(t, err)

	sub, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, id, sub)
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	Init()

	_, err := AuthenticateJWT("definitely-not-a-token")
	require.Error(t, err)
}

func TestInitFromPathLoadsPersistentKeys(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "session.key")
	pubPath := filepath.Join(dir, "session.pub")
	require.NoError(t, os.WriteFile(privPath, priv, 0o600))
	require.NoError(t, os.WriteFile(pubPath, pub, 0o644))

	require.NoError(t, InitFromPath(privPath, pubPath))

	id := uuid.NewString()
	token, err := CreateJWT(id)
	require.NoError(t, err)
	sub, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, id, sub)

	// Loading the same files again still verifies the earlier token, which
	// is the point of file-backed keys.
	require.NoError(t, InitFromPath(privPath, pubPath))
	sub, err = AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, id, sub)
}

func TestInitFromPathRejectsMissingFiles(t *testing.T) {
	require.Error(t, InitFromPath("/nonexistent/session.key", "/nonexistent/session.pub"))
}

func TestAuthenticateRejectsForeignSignature(t *testing.T) {
	Init()
	token, err := CreateJWT(uuid.NewString())
	require.NoError(t, err)

	// Rotating the key pair invalidates everything signed before.
	Init()
	_, err = AuthenticateJWT(token)
	require.Error(t, err)
}
