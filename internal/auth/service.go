package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/fileshare-gateway/internal/directory"
	"github.com/fileshare-gateway/internal/models"
)

type Error string

func (e Error) Error() string {
	return string(e)
}

var (
	ErrInvalidCredentials = Error("invalid username or password")
	ErrInvalidToken       = Error("invalid or expired token")
)

// Claims carried in a portal-user session token.
type Claims struct {
	Username   string `json:"username"`
	ParentType string `json:"parent_type"`
	ParentRef  string `json:"parent_ref"`
	jwt.RegisteredClaims
}

// Service authenticates portal users and issues session tokens. The viewer
// identity on view logs comes from these tokens.
type Service struct {
	dir         *directory.Service
	jwtSecret   []byte
	tokenExpiry time.Duration
}

func NewService(dir *directory.Service, jwtSecret string, tokenExpiry time.Duration) *Service {
	return &Service{
		dir:         dir,
		jwtSecret:   []byte(jwtSecret),
		tokenExpiry: tokenExpiry,
	}
}

// Login validates portal-user credentials and returns a signed token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *models.PortalUser, error) {
	user, err := s.dir.GetPortalUser(ctx, username)
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.generateToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *Service) generateToken(user *models.PortalUser) (string, error) {
	now := time.Now()
	claims := Claims{
		Username:   user.Username,
		ParentType: user.ParentType,
		ParentRef:  user.ParentRef,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a session token.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
