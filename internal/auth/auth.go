package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/victornm/quizrank/internal/errors"
)

const DefaultTokenTTL = 24 * time.Hour

// Identity is who a request or connection acts for.
type Identity struct {
	UserID   int64
	Username string
}

type claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret   string
	TokenTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Authenticator issues and verifies HS256 access tokens. Without a secret it issues
// nothing and rejects every token.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(c Config) *Authenticator {
	a := &Authenticator{
		secret: []byte(c.Secret),
		ttl:    c.TokenTTL,
		now:    c.Now,
	}
	if a.ttl <= 0 {
		a.ttl = DefaultTokenTTL
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

func (a *Authenticator) Issue(id Identity) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("sign token: no secret configured")
	}

	now := a.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		UserID:   id.UserID,
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(id.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	})

	s, err := t.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Parse verifies the token and returns its identity. Any failure is Unauthenticated.
func (a *Authenticator) Parse(token string) (Identity, error) {
	if len(a.secret) == 0 {
		return Identity{}, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("Invalid token"))
	}

	c := &claims{}
	_, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return Identity{}, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("Invalid token"), errors.WithCause(err))
	}

	if c.UserID <= 0 {
		return Identity{}, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("Invalid token"))
	}

	return Identity{UserID: c.UserID, Username: c.Username}, nil
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Optional attaches the bearer token's identity to the request when one is present and
// valid. Requests without a usable token continue anonymously.
func Optional(a *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			c.Next()
			return
		}

		id, err := a.Parse(token)
		if err != nil {
			c.Next()
			return
		}

		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// Required rejects requests that carry no identity.
func Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := IdentityFrom(c.Request.Context()); !ok {
			e := errors.New(errors.CodeUnauthenticated,
				errors.WithMessagef("Authentication credentials were not provided."))
			c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
			return
		}
		c.Next()
	}
}
