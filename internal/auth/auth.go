package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNoToken means no credential was supplied at all.
	ErrNoToken = errors.New("authentication token required")
	// ErrInvalidToken means the credential is malformed or its signature
	// does not verify.
	ErrInvalidToken = errors.New("invalid authentication token")
	// ErrExpiredToken means the credential verified but is past expiry.
	ErrExpiredToken = errors.New("authentication token expired")
)

const defaultTokenExpiry = 24 * time.Hour

// Claims carries the authenticated user id alongside the registered
// claim set.
type Claims struct {
	UserId string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 bearer tokens.
type TokenManager struct {
	signingKey []byte
	expiry     time.Duration
}

func NewTokenManager(signingKey []byte) *TokenManager {
	return &TokenManager{
		signingKey: signingKey,
		expiry:     defaultTokenExpiry,
	}
}

func (tm *TokenManager) GenerateToken(userId string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserId: userId,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "go-connect",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.signingKey)
}

// VerifyToken validates tokenString and returns the embedded user id.
// Expiry is reported distinctly from signature or format problems so the
// handshake can tell the caller which one it was.
func (tm *TokenManager) VerifyToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrNoToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return tm.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	if !token.Valid || claims.UserId == "" {
		return "", ErrInvalidToken
	}

	return claims.UserId, nil
}

func HashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func VerifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}
