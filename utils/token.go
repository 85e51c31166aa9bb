package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

type JwtCustomClaim struct {
	OperatorId   string   `json:"operator_id"`
	OperatorName string   `json:"operator_name"`
	Permissions  []string `json:"permissions"`
	jwt.StandardClaims
}

func jwtSecret() []byte {
	secret := os.Getenv("API_SECRET")
	if secret == "" {
		return []byte("Trade-Secret")
	}
	return []byte(secret)
}

func tokenLifespan() (time.Duration, error) {
	v := os.Getenv("TOKEN_HOUR_LIFESPAN")
	if v == "" {
		return 12 * time.Hour, nil
	}
	hours, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(hours) * time.Hour, nil
}

func JwtGenerate(operatorId string, operatorName string, permissions []string) (string, error) {
	if operatorId == "" {
		return "", errors.New("operator id is required")
	}
	lifespan, err := tokenLifespan()
	if err != nil {
		return "", err
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaim{
		OperatorId:   operatorId,
		OperatorName: operatorName,
		Permissions:  permissions,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(lifespan).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	})

	return t.SignedString(jwtSecret())
}

func JwtValidate(token string) (*jwt.Token, error) {
	return jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return jwtSecret(), nil
	})
}

// CanPerform reports whether a permission list grants an operation.
// "*" grants everything.
func CanPerform(permissions []string, operation string) bool {
	for _, p := range permissions {
		if p == "*" || p == operation {
			return true
		}
	}
	return false
}
