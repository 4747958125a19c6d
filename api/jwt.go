package api

import (
	"crypto"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"ma2ta/models"
)

type Claims struct {
	Username string `json:"username"`
	IsStaff  bool   `json:"is_staff"`
	jwt.RegisteredClaims
}

func ParseAndValidateJWT(tokenString string, secret crypto.Signer) (*Claims, error) {
	const op = "ParseJWT"
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret.Public(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%s: token is invalid", op)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("%s: token claims are invalid", op)
	}
	return claims, nil
}

// SignJWT issues an access token for the user with the configured
// lifetime and audience.
func SignJWT(user *models.User, config AuthConfig) (string, error) {
	const op = "SignJWT"
	now := time.Now()
	token := jwt.NewWithClaims(&jwt.SigningMethodEd25519{}, Claims{
		Username: user.Username,
		IsStaff:  user.IsStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(config.ExpireDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    config.Issuer,
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			Audience:  []string{config.Audience},
		},
	})
	signed, err := token.SignedString(config.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("[%s] fail to sign JWT, err=%w", op, err)
	}
	return signed, nil
}
