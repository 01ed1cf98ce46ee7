package auth

import (
	"errors"
	"net/http"
	"strings"

	"hotel-booking/internal/logger"
	"hotel-booking/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingAuthHeader = errors.New("authorization header is missing")
	ErrMalformedHeader   = errors.New("authorization header format must be 'Bearer {token}'")
	ErrNotAdmin          = errors.New("token does not carry the admin role")
)

// ExtractBearerToken pulls the JWT out of an Authorization header.
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAuthHeader
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", ErrMalformedHeader
	}
	return parts[1], nil
}

// ValidateAdminToken verifies the signature and the admin role claim,
// returning the subject.
func ValidateAdminToken(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token claims")
	}
	if role, _ := claims["role"].(string); role != "admin" {
		return "", ErrNotAdmin
	}

	sub, _ := claims["sub"].(string)
	return sub, nil
}

// AdminOnly is the gin middleware guarding the staff API.
func AdminOnly(secret string, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			log.Error("AUTH", "ADMIN_JWT_SECRET is not set, rejecting admin request")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, utils.ErrorResponse("Admin API is not configured", ""))
			return
		}

		tokenString, err := ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", err.Error()))
			return
		}

		sub, err := ValidateAdminToken(tokenString, secret)
		if err != nil {
			log.Warn("AUTH", "Rejected admin token: "+err.Error())
			status := http.StatusUnauthorized
			if errors.Is(err, ErrNotAdmin) {
				status = http.StatusForbidden
			}
			c.AbortWithStatusJSON(status, utils.ErrorResponse("Unauthorized", err.Error()))
			return
		}

		c.Set("admin_id", sub)
		c.Next()
	}
}
