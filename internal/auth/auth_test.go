package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTValidator(t *testing.T) {
	v := NewJWTValidator("s3cret")

	token, err := Sign("s3cret", "user-1", time.Hour)
	require.NoError(t, err)
	owner, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", owner)

	expired, err := Sign("s3cret", "user-1", -time.Minute)
	require.NoError(t, err)
	_, err = v.Validate(expired)
	assert.True(t, errors.Is(err, ErrCredential))

	forged, err := Sign("other", "user-1", time.Hour)
	require.NoError(t, err)
	_, err = v.Validate(forged)
	assert.True(t, errors.Is(err, ErrCredential))

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = v.Validate(noUser)
	assert.True(t, errors.Is(err, ErrCredential))

	_, err = v.Validate("")
	assert.True(t, errors.Is(err, ErrCredential))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}

func TestMiddleware(t *testing.T) {
	e := echo.New()
	v := NewJWTValidator("s3cret")
	handler := Middleware(v)(func(c echo.Context) error {
		return c.String(http.StatusOK, OwnerID(c))
	})

	good, err := Sign("s3cret", "user-9", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, MsgTokenRequired},
		{"invalid", "Bearer nope", http.StatusUnauthorized, MsgTokenInvalid},
		{"valid", "Bearer " + good, http.StatusOK, "user-9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			require.NoError(t, handler(c))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}
