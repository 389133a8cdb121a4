// Package auth validates bearer tokens and resolves the caller's owner id.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/supportchat/internal/domain"
)

const ownerKey = "ownerID"

// Messages returned to unauthenticated callers.
const (
	MsgTokenRequired = "Access token required"
	MsgTokenInvalid  = "Invalid or expired token"
)

// ErrCredential marks an invalid, expired, or missing token.
var ErrCredential = errors.New("invalid credentials")

// CredentialError wraps the reason a token was rejected.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential error: %v", e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

func (e *CredentialError) Is(target error) bool { return target == ErrCredential }

// Claims is the token payload.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Validator resolves a token to an owner id.
type Validator interface {
	Validate(token string) (string, error)
}

// JWTValidator checks HS256 tokens signed with a shared secret.
type JWTValidator struct {
	secret []byte
}

var _ Validator = (*JWTValidator)(nil)

// NewJWTValidator creates a validator for secret.
func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

// Validate parses token and returns its userId claim.
func (v *JWTValidator) Validate(token string) (string, error) {
	if token == "" {
		return "", &CredentialError{Err: errors.New("token required")}
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", &CredentialError{Err: err}
	}
	if !parsed.Valid || claims.UserID == "" {
		return "", &CredentialError{Err: errors.New("token carries no user id")}
	}
	return claims.UserID, nil
}

// Sign issues a token for ownerID. A zero ttl means no expiry.
func Sign(secret, ownerID string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Middleware rejects requests without a valid bearer token and stores the
// owner id on the context.
func Middleware(v Validator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" {
				return c.JSON(http.StatusUnauthorized, domain.Envelope{Success: false, Message: MsgTokenRequired})
			}
			ownerID, err := v.Validate(token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, domain.Envelope{Success: false, Message: MsgTokenInvalid})
			}
			c.Set(ownerKey, ownerID)
			return next(c)
		}
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// OwnerID returns the owner id set by Middleware.
func OwnerID(c echo.Context) string {
	id, _ := c.Get(ownerKey).(string)
	return id
}
