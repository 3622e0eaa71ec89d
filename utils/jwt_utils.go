package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// EmployeeGuard is the only guard accepted on file manager routes.
const EmployeeGuard = "employee"

type Claims struct {
	EmployeeID string `json:"employee_id"`
	Email      string `json:"email,omitempty"`
	Guard      string `json:"guard"`
	jwt.RegisteredClaims
}

func GenerateEmployeeToken(employeeID, email, issuer, jwtSecret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		EmployeeID: employeeID,
		Email:      email,
		Guard:      EmployeeGuard,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   employeeID,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

func VerifyJWTTokenWithSecret(tokenString, jwtSecret, issuer string) (*Claims, error) {
	var opts []jwt.ParserOption
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(jwtSecret), nil
	}, opts...)

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if claims.EmployeeID == "" {
			return nil, errors.New("token has no employee id")
		}
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
