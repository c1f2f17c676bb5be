package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mcdev12/quizsync/go/internal/quiz/client"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Claims is the token payload: the subject is the player id.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Authenticator resolves the identity of an incoming connection. With a
// secret it requires an HS256 token, either as a bearer header or in the
// token query parameter (browsers cannot set headers on a WebSocket
// handshake). Without one it trusts the player_id and name query
// parameters, which is only meant for local development.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	a := &Authenticator{now: time.Now}
	if secret != "" {
		a.secret = []byte(secret)
	}
	return a
}

func (a *Authenticator) DevMode() bool { return a.secret == nil }

func (a *Authenticator) Authenticate(r *http.Request) (client.Identity, error) {
	if a.DevMode() {
		id := client.Identity{
			PlayerID: r.URL.Query().Get("player_id"),
			Name:     r.URL.Query().Get("name"),
		}
		if id.PlayerID == "" {
			id.PlayerID = uuid.NewString()
		}
		if id.Name == "" {
			id.Name = "Player " + id.PlayerID[:min(6, len(id.PlayerID))]
		}
		return id, nil
	}

	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return client.Identity{}, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}
	return a.ParseToken(token)
}

// ParseToken validates a token and returns the identity it carries.
func (a *Authenticator) ParseToken(token string) (client.Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return client.Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return client.Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return client.Identity{PlayerID: claims.Subject, Name: name}, nil
}

// IssueToken signs a token for identity valid for ttl.
func (a *Authenticator) IssueToken(identity client.Identity, ttl time.Duration) (string, error) {
	if a.DevMode() {
		return "", errors.New("no signing secret configured")
	}
	now := a.now()
	claims := Claims{
		Name: identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.PlayerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
