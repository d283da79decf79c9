package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"yamdb/internal/apperrors"
	"yamdb/internal/models"
)

const bearerPrefix = "Bearer "

// Manager issues and verifies HS256 access tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Claims are the verified contents of an access token.
type Claims struct {
	UserID    int64
	Username  string
	ExpiresAt time.Time
	ID        string
}

type accessClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Issue signs an access token for u.
func (m *Manager) Issue(u *models.User) (string, error) {
	now := m.now().UTC()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
		Username: u.Username,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Parse verifies token and returns its claims.
func (m *Manager) Parse(token string) (Claims, error) {
	var parsed accessClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}
	id, err := strconv.ParseInt(parsed.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Claims{}, apperrors.Unauthenticated("token subject is invalid")
	}
	return Claims{
		UserID:    id,
		Username:  parsed.Username,
		ExpiresAt: parsed.ExpiresAt.Time,
		ID:        parsed.ID,
	}, nil
}

// BearerToken extracts the token from the Authorization header. ok is false
// when the header is absent.
func BearerToken(r *http.Request) (token string, ok bool, err error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false, nil
	}
	if !strings.HasPrefix(h, bearerPrefix) {
		return "", true, apperrors.Unauthenticated("authorization header must use the Bearer scheme")
	}
	token = strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	if token == "" {
		return "", true, apperrors.Unauthenticated("bearer token is empty")
	}
	return token, true, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &apperrors.Error{Kind: apperrors.KindAuthentication, Message: "token is expired", Cause: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &apperrors.Error{Kind: apperrors.KindAuthentication, Message: "token signature is invalid", Cause: err}
	default:
		return &apperrors.Error{Kind: apperrors.KindAuthentication, Message: "token is invalid", Cause: err}
	}
}
