// internal/handlers/session_test.go
package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodlab/levee/internal/auth"
)

func TestEnsureSessionMintsIdentity(t *testing.T) {
	auth.Init()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ws", nil)

	id, err := EnsureSession(rec, req)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session_token", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
}

func TestEnsureSessionReusesValidToken(t *testing.T) {
	auth.Init()

	rec := httptest.NewRecorder()
	first, err := EnsureSession(rec, httptest.NewRequest("GET", "/ws", nil))
	require.NoError(t, err)

	cookie := rec.Result().Cookies()[0]
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Cookie", cookie.Name+"="+cookie.Value)

	second, err := EnsureSession(httptest.NewRecorder(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second, "a returning browser maps back to the same participant")
}

func TestEnsureSessionReplacesGarbageToken(t *testing.T) {
	auth.Init()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Cookie", "session_token=not-a-jwt")

	id, err := EnsureSession(rec, req)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	require.Len(t, rec.Result().Cookies(), 1, "a fresh token replaces the bad one")
}
