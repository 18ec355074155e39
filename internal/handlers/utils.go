package handlers

import "strings"

// playerTokenFromCookie extracts the player_token value from a raw "Cookie"
// header, or returns empty if not present.
func playerTokenFromCookie(cookieHeader string) string {
	parts := strings.Split(cookieHeader, playerCookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}
