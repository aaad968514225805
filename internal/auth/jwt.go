package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

type Claims struct {
	Username  string `json:"username"`
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// Manager authenticates the single admin account and issues access tokens.
type Manager struct {
	secret       []byte
	username     string
	passwordHash string
	ttl          time.Duration
	now          func() time.Time
}

func NewManager(secret, username, passwordHash string, accessTokenMinutes int) *Manager {
	if accessTokenMinutes <= 0 {
		accessTokenMinutes = 60
	}
	return &Manager{
		secret:       []byte(secret),
		username:     username,
		passwordHash: passwordHash,
		ttl:          time.Duration(accessTokenMinutes) * time.Minute,
		now:          time.Now,
	}
}

// Login checks the credentials against the admin account and returns a
// signed access token with its expiry.
func (m *Manager) Login(username, password string) (string, time.Time, error) {
	if username != m.username {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := CheckPassword(m.passwordHash, password); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return m.GenerateToken(username)
}

func (m *Manager) GenerateToken(username string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := Claims{
		Username:  username,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if claims.TokenType != "access" {
			return nil, errors.New("invalid token type")
		}
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

func CheckPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
