// internal/auth/identity.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Provider mints and verifies opaque player identities. The default
// implementation is an unverified pseudo-identity ("this browser"), kept
// behind the interface so a verified-auth variant can replace it without
// touching game logic.
type Provider interface {
	// Issue mints a fresh player id and a token the client persists.
	Issue() (uuid.UUID, string, error)
	// Verify returns the player id a previously issued token encodes.
	Verify(token string) (uuid.UUID, error)
}

// EphemeralProvider signs player ids into JWTs with a runtime-generated
// ed25519 key pair. Tokens only prove "same browser as before"; there is no
// account behind them. Restarting the server invalidates all tokens, which
// for a casual game just means players get a new identity.
type EphemeralProvider struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// expireSec is how many seconds until token expiration (0 => never),
	// from the TOKEN_EXPIRE_TIME env var (a Go duration, or "never").
	expireSec int
}

// NewEphemeralProvider generates a fresh key pair and reads the token
// expiration from the environment.
func NewEphemeralProvider() (*EphemeralProvider, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}

	p := &EphemeralProvider{privateKey: priv, publicKey: pub}

	duration := os.Getenv("TOKEN_EXPIRE_TIME")
	if duration == "" || duration == "never" || duration == "0" {
		p.expireSec = 0
	} else {
		d, err := time.ParseDuration(duration)
		if err != nil {
			return nil, fmt.Errorf("failed to parse token expire time: %w", err)
		}
		p.expireSec = int(d.Seconds())
	}
	return p, nil
}

// Issue mints a new random player id wrapped in a signed JWT.
func (p *EphemeralProvider) Issue() (uuid.UUID, string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("failed to generate player id: %w", err)
	}

	claims := jwt.MapClaims{"sub": id.String()}
	if p.expireSec > 0 {
		claims["exp"] = time.Now().Add(time.Duration(p.expireSec) * time.Second).Unix()
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(p.privateKey)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("failed to sign player token: %w", err)
	}
	return id, token, nil
}

// Verify parses and checks a player token, returning the embedded id.
func (p *EphemeralProvider) Verify(tokenString string) (uuid.UUID, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.publicKey, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return uuid.Nil, fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid jwt claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("missing sub in jwt")
	}

	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid player id in token: %w", err)
	}
	return id, nil
}
