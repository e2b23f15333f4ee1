package middleware

import (
	"errors"
	"net/http"
	"strings"

	pkgAuth "bj-service/pkg/auth"
	"bj-service/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserIDKey   = "userID"
	ContextNicknameKey = "nickname"
	ContextAdminIDKey  = "adminID"
)

// AuthRequired checks a player token and puts the player id and nickname on
// the context.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := TokenFromRequest(c)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, err.Error())
			c.Abort()
			return
		}

		claims, err := pkgAuth.ParseUserToken(token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.SubjectID)
		c.Set(ContextNicknameKey, claims.Nickname)
		c.Next()
	}
}

// TokenFromRequest reads a bearer header, falling back to the token query
// parameter for websocket upgrades where browsers cannot set headers.
func TokenFromRequest(c *gin.Context) (string, error) {
	token, err := extractBearerToken(c.GetHeader("Authorization"))
	if err == nil && token != "" {
		return token, nil
	}
	if token = strings.TrimSpace(c.Query("token")); token != "" {
		return token, nil
	}
	if err == nil {
		err = errors.New("missing token")
	}
	return "", err
}

func AdminAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.Error(c, http.StatusUnauthorized, err.Error())
			c.Abort()
			return
		}

		claims, err := pkgAuth.ParseAdminToken(token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}

		c.Set(ContextAdminIDKey, claims.SubjectID)
		c.Next()
	}
}

func extractBearerToken(authHeader string) (string, error) {
	if strings.TrimSpace(authHeader) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
