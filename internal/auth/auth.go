// Package auth issues and checks the bearer tokens that identify a storefront
// session. Every token carries a session id; admin tokens may also write the
// product catalog.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"tea-storefront/internal/entity"
)

const contextKey = "user"

type Claims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue creates a token for a fresh session.
func (i *Issuer) Issue(admin bool) (token, sessionID string, err error) {
	sessionID = uuid.NewString()
	now := i.now()
	claims := &Claims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	tkn := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err = tkn.SignedString(i.secret)
	if err != nil {
		return "", "", err
	}
	return token, sessionID, nil
}

// Middleware rejects requests without a valid session token.
func (i *Issuer) Middleware() echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: i.secret,
		ContextKey: contextKey,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(Claims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "missing or invalid session token",
				"code":  entity.CodeUnauthorized,
			})
		},
	})
}

// RequireAdmin must run after Middleware.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, err := claimsFrom(c)
		if err != nil || !claims.Admin {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error": "admin session required",
				"code":  entity.CodeUnauthorized,
			})
		}
		return next(c)
	}
}

// SessionID returns the session the request was authenticated as.
func SessionID(c echo.Context) (string, error) {
	claims, err := claimsFrom(c)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no session", entity.ErrUnauthorized)
	}
	return claims.Subject, nil
}

func claimsFrom(c echo.Context) (*Claims, error) {
	token, ok := c.Get(contextKey).(*jwt.Token)
	if !ok {
		return nil, errors.New("no token in context")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return claims, nil
}
