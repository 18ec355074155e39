// internal/handlers/player.go
package handlers

import (
	"net/http"

	"github.com/google/uuid"
)

const playerCookieName = "player_token"

// EnsurePlayer resolves the caller's pseudo-identity from the player_token
// cookie, minting a fresh one (and setting the cookie) when the cookie is
// missing or no longer verifies. Every request path goes through here, so a
// first-time visitor silently becomes a player. The identity only claims
// "same browser as before"; there is no account behind it.
func (s *Server) EnsurePlayer(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	if token := playerTokenFromCookie(r.Header.Get("Cookie")); token != "" {
		if id, err := s.Identity.Verify(token); err == nil {
			return id, nil
		}
		// fall through: stale or foreign token, issue a new identity
	}

	id, token, err := s.Identity.Issue()
	if err != nil {
		return uuid.Nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	return id, nil
}
