package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"ma2ta/models"
)

const (
	accessTokenCookie = "access_token"

	contextKeyClaims = "auth.claims"
	contextKeyUser   = "auth.user"
)

// accessToken pulls the token from the cookie set at login or, for API
// clients, from a bearer Authorization header.
func accessToken(c *gin.Context) string {
	if token, err := c.Cookie(accessTokenCookie); err == nil && token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if after, found := strings.CutPrefix(header, "Bearer "); found {
		return after
	}
	return ""
}

// requireAuth aborts with 401 unless the request carries a valid access
// token for an existing user. The user row is loaded once here so
// handlers get fresh role flags instead of trusting the token's.
func (impl *ServerImpl) requireAuth(c *gin.Context) {
	const op = "requireAuth"

	token := accessToken(c)
	if token == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	claims, err := ParseAndValidateJWT(token, impl.config.Auth.PrivateKey)
	if err != nil {
		slog.Debug("reject invalid access token", slog.String("op", op), slog.Any("error", err))
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	var user models.User
	if err := impl.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		slog.Error("fail to load authenticated user", slog.String("op", op), slog.Any("error", err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.Set(contextKeyClaims, claims)
	c.Set(contextKeyUser, &user)
	c.Next()
}

// requireStaff must run after requireAuth.
func (impl *ServerImpl) requireStaff(c *gin.Context) {
	user := currentUser(c)
	if user == nil || !user.IsStaff {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}
	c.Next()
}

// currentUser returns the authenticated user, nil on anonymous requests.
func currentUser(c *gin.Context) *models.User {
	value, ok := c.Get(contextKeyUser)
	if !ok {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}

// isStaff also works on unauthenticated routes, where it probes the
// token without requiring one.
func (impl *ServerImpl) isStaff(c *gin.Context) bool {
	if user := currentUser(c); user != nil {
		return user.IsStaff
	}
	token := accessToken(c)
	if token == "" {
		return false
	}
	claims, err := ParseAndValidateJWT(token, impl.config.Auth.PrivateKey)
	if err != nil {
		return false
	}
	return claims.IsStaff
}
