// internal/handlers/session.go
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/floodlab/levee/internal/auth"
)

// EnsureSession resolves the participant identity for an incoming request.
// If the browser carries a valid session_token cookie we reuse that identity,
// which is what lets a participant reconnect into the same villager slot.
// Otherwise a fresh ID is minted and a signed token is set on the response.
func EnsureSession(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	cookieHeader := r.Header.Get("Cookie")
	if strings.Contains(cookieHeader, "session_token=") {
		token := extractTokenFromCookie(cookieHeader)
		idStr, err := auth.AuthenticateJWT(token)
		if err == nil {
			id, parseErr := uuid.Parse(idStr)
			if parseErr == nil {
				return id, nil
			}
		}
		// Token invalid or expired; fall through and mint a new identity.
	}

	id := uuid.New()
	token, err := auth.CreateJWT(id.String())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create session token: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	return id, nil
}

func extractTokenFromCookie(cookie string) string {
	parts := strings.Split(cookie, "session_token=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}
