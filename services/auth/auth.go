// Package auth handles login, JWT issuance, and request identity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrBadCredentials covers both unknown users and wrong passwords so the
	// response does not reveal which one failed.
	ErrBadCredentials = errors.New("invalid email or password")
	// ErrInvalidToken is returned for missing, expired, or tampered tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnknownField is returned when a login names a field with no readings
	// table.
	ErrUnknownField = errors.New("unknown field")
)

// Claims is the JWT payload carried by every authenticated request.
type Claims struct {
	UserID  uuid.UUID `json:"user_id"`
	Role    string    `json:"role"`
	FieldID string    `json:"field_id"`
	jwt.RegisteredClaims
}

// Identity is the resolved caller extracted from a verified token.
type Identity struct {
	UserID  uuid.UUID
	Role    string
	FieldID string
}

// Tokens signs and verifies HS256 JWTs.
type Tokens struct {
	Secret []byte
	TTL    time.Duration
}

// Issue signs a token for the given user.
func (t *Tokens) Issue(userID uuid.UUID, role, fieldID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:  userID,
		Role:    role,
		FieldID: fieldID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.TTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
}

// Verify parses and validates a signed token and returns the caller identity.
func (t *Tokens) Verify(tokenStr string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.Secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: claims.UserID, Role: claims.Role, FieldID: claims.FieldID}, nil
}

// CheckPassword compares a bcrypt hash against a plaintext candidate.
func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// HashPassword bcrypt-hashes a plaintext password.
func HashPassword(plain string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(out), err
}
