package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fastfare/internal/shared/config"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin      = "ADMIN"
	RoleDispatcher = "DISPATCHER"
	RoleDriver     = "DRIVER"
	RoleCustomer   = "CUSTOMER"
)

const issuer = "fastfare"

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the subject identity. For DRIVER tokens UserID is the
// driver id used on the tracking wire.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"` // ADMIN | DISPATCHER | DRIVER | CUSTOMER
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry one of roles.
func (c *Claims) HasRole(roles ...string) bool {
	for _, r := range roles {
		if strings.EqualFold(c.Role, r) {
			return true
		}
	}
	return false
}

type JWTService struct {
	secret        []byte
	expiryMinutes int
	now           func() time.Time
}

func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret:        []byte(cfg.Secret),
		expiryMinutes: cfg.ExpiryMinutes,
		now:           time.Now,
	}
}

func (s *JWTService) GenerateToken(userID, email, role string) (string, error) {
	return s.GenerateTokenWithTTL(userID, email, role, time.Duration(s.expiryMinutes)*time.Minute)
}

func (s *JWTService) GenerateTokenWithTTL(userID, email, role string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("generate token: empty user id")
	}
	now := s.now()

	claims := &Claims{
		UserID: userID,
		Email:  email,
		Role:   strings.ToUpper(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	return claims, nil
}

// ExtractUserID validates tokenString and returns its subject and role.
func (s *JWTService) ExtractUserID(tokenString string) (userID, role string, err error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", "", err
	}
	return claims.UserID, claims.Role, nil
}

// BearerToken strips the "Bearer " prefix from an Authorization header.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
