// middleware/jwt_middleware.go
package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/lvanfai123/moving-service-sub001/models"
)

// JwtCustomClaims for JWT token
type JwtCustomClaims struct {
	UserID   string `json:"userId"`
	Email    string `json:"email,omitempty"`
	UserType string `json:"userType"`
	jwt.StandardClaims
}

// Valid implements jwt.Claims. A zero ExpiresAt means the token does not expire.
func (c JwtCustomClaims) Valid() error {
	now := time.Now().Unix()
	if c.ExpiresAt > 0 && now > c.ExpiresAt {
		return errors.New("token is expired")
	}
	if c.NotBefore > 0 && now < c.NotBefore {
		return errors.New("token used before valid")
	}
	if c.UserID == "" {
		return errors.New("token has no user id")
	}
	return nil
}

// JWTMiddleware verifies the bearer token and stores the caller's identity
func JWTMiddleware(secret string, logger *zap.Logger) echo.MiddlewareFunc {
	if secret == "" {
		logger.Warn("JWT_SECRET is not set, authenticated routes will reject every request")
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				return c.JSON(http.StatusUnauthorized, models.Failure(
					models.NewError(models.ErrUnauthorized, "authentication is not configured")))
			}
		}
	}

	return middleware.JWTWithConfig(middleware.JWTConfig{
		SigningKey:    []byte(secret),
		SigningMethod: middleware.AlgorithmHS256,
		Claims:        &JwtCustomClaims{},
		SuccessHandler: func(c echo.Context) {
			claims := c.Get("user").(*jwt.Token).Claims.(*JwtCustomClaims)
			c.Set("userId", claims.UserID)
			c.Set("userType", claims.UserType)
		},
		ErrorHandlerWithContext: func(err error, c echo.Context) error {
			logger.Debug("jwt rejected", zap.String("path", c.Request().URL.Path), zap.Error(err))
			return c.JSON(http.StatusUnauthorized, models.Failure(
				models.NewError(models.ErrUnauthorized, "please provide valid credentials")))
		},
	})
}

// GenerateJWT signs a token for userID. A zero ttl produces a token without expiry.
func GenerateJWT(secret, userID, userType string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("JWT_SECRET environment variable is required")
	}

	now := time.Now()
	claims := &JwtCustomClaims{
		UserID:   userID,
		UserType: userType,
		StandardClaims: jwt.StandardClaims{
			IssuedAt: now.Unix(),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = now.Add(ttl).Unix()
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// GetUserFromToken returns the verified claims of the request, if any
func GetUserFromToken(c echo.Context) *JwtCustomClaims {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return nil
	}
	claims, ok := token.Claims.(*JwtCustomClaims)
	if !ok {
		return nil
	}
	return claims
}

func ExtractUserID(c echo.Context) (string, error) {
	if userID, ok := c.Get("userId").(string); ok && userID != "" {
		return userID, nil
	}
	if claims := GetUserFromToken(c); claims != nil && claims.UserID != "" {
		return claims.UserID, nil
	}
	return "", errors.New("invalid user ID in token")
}

// ExtractUserType safely extracts the user type from the context
func ExtractUserType(c echo.Context) string {
	if userType, ok := c.Get("userType").(string); ok && userType != "" {
		return userType
	}
	if claims := GetUserFromToken(c); claims != nil {
		return claims.UserType
	}
	return ""
}
