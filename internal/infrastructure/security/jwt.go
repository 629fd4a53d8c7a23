// Package security provides JWT token utilities for visitor sessions.
package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// GenerateSessionToken creates a signed bearer token binding a session
// identifier, so a client can prove ownership of its session across
// requests without the server keeping token state.
func GenerateSessionToken(sessionID, userID, jwtSecret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sessionId": sessionID,
		"iat":       time.Now().UTC().Unix(),
		"exp":       time.Now().UTC().Add(ttl).Unix(),
	}
	if userID != "" {
		claims["userId"] = userID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

// ValidateSessionToken validates a session token and returns the bound
// session identifier.
func ValidateSessionToken(tokenString, jwtSecret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}
	sessionID, ok := claims["sessionId"].(string)
	if !ok || sessionID == "" {
		return "", errors.New("token missing session binding")
	}
	return sessionID, nil
}
