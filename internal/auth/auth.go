package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/ride-dispatch/internal/apperrors"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/storage"
)

// Claims carried in issued tokens: the account id and its role.
type Claims struct {
	UserID string `json:"sub"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and validates credentials on top of the user store.
// The secret is injected; an empty secret disables token issuance.
type Service struct {
	Users    storage.UserStore
	Secret   []byte
	TokenTTL time.Duration
}

func NewService(users storage.UserStore, secret string) *Service {
	return &Service{Users: users, Secret: []byte(secret), TokenTTL: 24 * time.Hour}
}

// Register hashes the password and creates the account. The returned
// user carries no password hash.
func (s *Service) Register(ctx context.Context, name, phone, password string) (*models.User, error) {
	if name == "" || phone == "" || password == "" {
		return nil, apperrors.Validationf("missing required fields")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &models.User{Name: name, Phone: phone, Password: string(hashed)}
	if err := s.Users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	u.Password = ""
	return u, nil
}

// Login verifies the credential and returns the user plus a signed
// token when a secret is configured.
func (s *Service) Login(ctx context.Context, phone, password, role string) (*models.User, string, error) {
	u, err := s.Users.UserByPhone(ctx, phone)
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return nil, "", fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized)
	}
	u.Password = ""
	if len(s.Secret) == 0 {
		return u, "", nil
	}
	if role == "" {
		role = "rider"
	}
	token, err := s.generate(u.ID, role)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func (s *Service) generate(userID, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.Secret)
}

// Validate parses a bearer token and returns its claims.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", apperrors.ErrUnauthorized)
	}
	return claims, nil
}
