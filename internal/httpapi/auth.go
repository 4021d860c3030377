package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/quizroom/internal/room"
)

// ErrUnauthenticated means the request carried no usable identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// guestHeader lets clients play without minting a token first; the key is
// any stable opaque string the client keeps in local storage.
const guestHeader = "X-Guest-Key"

const guestTokenTTL = 24 * time.Hour

// Claims is the JWT claim set. Exactly one of UserID or GuestKey is set.
type Claims struct {
	UserID   string `json:"user_id,omitempty"`
	GuestKey string `json:"guest_key,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator resolves request identities from HS256 bearer tokens or the
// guest header. The identity string feeds straight into the room engine:
// "user:<id>" for account holders, "guest:<key>" for everyone else.
type Authenticator struct {
	secret []byte
	clock  clockwork.Clock
}

// NewAuthenticator creates an Authenticator with the given signing secret.
func NewAuthenticator(secret []byte, clock clockwork.Clock) *Authenticator {
	return &Authenticator{secret: secret, clock: clock}
}

// MintGuestToken issues a fresh guest key wrapped in a signed token.
func (a *Authenticator) MintGuestToken() (token, guestKey string, err error) {
	guestKey = uuid.NewString()
	now := a.clock.Now()

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		GuestKey: guestKey,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(guestTokenTTL)),
		},
	})
	token, err = t.SignedString(a.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign guest token: %w", err)
	}
	return token, guestKey, nil
}

// ResolveIdentity extracts the caller's identity from the request. Bearer
// tokens win over the guest header.
func (a *Authenticator) ResolveIdentity(r *http.Request) (string, error) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			return "", fmt.Errorf("%w: malformed authorization header", ErrUnauthenticated)
		}
		return a.identityFromToken(raw)
	}

	if key := r.Header.Get(guestHeader); key != "" {
		return room.GuestIdentityPrefix + key, nil
	}

	return "", ErrUnauthenticated
}

func (a *Authenticator) identityFromToken(raw string) (string, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.clock.Now))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}

	switch {
	case claims.UserID != "":
		return "user:" + claims.UserID, nil
	case claims.GuestKey != "":
		return room.GuestIdentityPrefix + claims.GuestKey, nil
	default:
		return "", fmt.Errorf("%w: token carries no identity", ErrUnauthenticated)
	}
}
