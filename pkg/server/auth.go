package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown player or a bad password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken wraps every reason a session token is refused.
	ErrInvalidToken = errors.New("invalid token")
)

const tokenIssuer = "gridmush"

// GridClaims is the payload of a web session token. Builder records whether
// the player could edit grids when the token was issued.
type GridClaims struct {
	Player  gamedb.DBRef `json:"player"`
	Name    string       `json:"name"`
	Builder bool         `json:"builder,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies the session tokens of web clients.
type Tokens struct {
	game   *Game
	key    []byte
	ttl    time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

// NewTokens returns a token service signing with secret. An empty secret
// gets a random per-process key, so tokens do not survive a restart.
func NewTokens(game *Game, secret string, ttlSeconds int) *Tokens {
	key := []byte(secret)
	if secret == "" {
		key = make([]byte, 32)
		rand.Read(key)
	}
	ttl := 24 * time.Hour
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	t := &Tokens{game: game, key: key, ttl: ttl, now: time.Now}
	t.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return t.now() }),
	)
	return t
}

// Login checks a player's password and issues a token for it.
func (t *Tokens) Login(name, password string) (string, error) {
	player := t.game.LookupPlayer(name)
	if player == gamedb.Nothing || !t.game.CheckPassword(player, password) {
		return "", ErrInvalidCredentials
	}
	return t.Issue(player)
}

// Issue signs a fresh token for player. The builder bit is read from the
// world at this moment.
func (t *Tokens) Issue(player gamedb.DBRef) (string, error) {
	if typ, ok := t.game.ObjType(player); !ok || typ != gamedb.TypePlayer {
		return "", fmt.Errorf("%w: #%d is not a player", ErrInvalidToken, player)
	}
	now := t.now()
	claims := GridClaims{
		Player:  player,
		Name:    t.game.PlayerName(player),
		Builder: Builder(t.game, player),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprintf("#%d", player),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
}

// Verify parses raw and returns its claims.
func (t *Tokens) Verify(raw string) (*GridClaims, error) {
	claims := &GridClaims{}
	_, err := t.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// Refresh trades a still-valid token for a new one. Name and builder bit are
// re-read, so a demoted builder loses grid access at the next refresh.
func (t *Tokens) Refresh(raw string) (string, error) {
	claims, err := t.Verify(raw)
	if err != nil {
		return "", err
	}
	return t.Issue(claims.Player)
}

type claimsKey struct{}

// ClaimsFromContext returns the claims Authenticate stored, or nil.
func ClaimsFromContext(ctx context.Context) *GridClaims {
	c, _ := ctx.Value(claimsKey{}).(*GridClaims)
	return c
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", errors.New("authorization required")
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("invalid authorization header")
	}
	return strings.TrimSpace(token), nil
}

// Authenticate is chi middleware that rejects requests without a valid
// bearer token and stores the claims in the request context.
func (t *Tokens) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := t.Verify(raw)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

// RequireBuilder is chi middleware for grid endpoints. It runs after
// Authenticate and needs both the token's builder claim and the player's
// current builder flag.
func (t *Tokens) RequireBuilder(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil || !claims.Builder || !Builder(t.game, claims.Player) {
			respondError(w, http.StatusForbidden, "permission denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}
