package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/middleware"
	models "github.com/calcutta/console/internal/models/users"
)

// ErrEmptyToken is returned when a session is opened without a token.
var ErrEmptyToken = errors.New("token is required")

// AuthService turns API tokens into console session cookies. Credentials
// are checked by the Calcutta API; the console only verifies the token it
// hands back.
type AuthService struct {
	auth   *middleware.Authenticator
	secret []byte
	secure bool
	now    func() time.Time
}

// NewAuthService creates a new instance of AuthService. secure marks
// cookies Secure and should be set outside development.
func NewAuthService(secret string, secure bool) *AuthService {
	return &AuthService{
		auth:   middleware.NewAuthenticator(secret, logger.Nop()),
		secret: []byte(secret),
		secure: secure,
		now:    time.Now,
	}
}

// Open validates token and returns the user it names with the cookie that
// carries it.
func (s *AuthService) Open(token string) (*models.User, *http.Cookie, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil, ErrEmptyToken
	}
	user, _, err := s.auth.Parse(token)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid token: %w", err)
	}

	cookie := s.cookie(token)
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			cookie.Expires = exp.Time
			cookie.MaxAge = int(exp.Time.Sub(s.now()).Seconds())
		}
	}
	return user, cookie, nil
}

// Close returns a cookie that clears the session.
func (s *AuthService) Close() *http.Cookie {
	c := s.cookie("")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}

func (s *AuthService) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// GenerateJWT signs a token the way the API does. It backs the developer
// token command and tests; production tokens come from the API.
func (s *AuthService) GenerateJWT(user models.User, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id":    user.UserID,
		"email":      user.Email,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"exp":        s.now().Add(ttl).Unix(),
	}
	if user.Permissions != nil {
		claims["permissions"] = user.Permissions
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
