package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"subforge/internal/logging"
	"subforge/internal/quota"
	"subforge/internal/services"
)

const (
	headerRequestID = "X-Request-ID"
	headerUserID    = "X-User-ID"
	userKey         = "subforge.user"
)

// requestID propagates or assigns X-Request-ID and stores it on the request
// context for log correlation.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(headerRequestID, id)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// bearerAuth requires "Authorization: Bearer <token>" when token is set.
func bearerAuth(token string) gin.HandlerFunc {
	if token == "" {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		presented, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, MessageResponse{Error: "unauthorized"})
			return
		}
		c.Next()
	}
}

// userIdentity reads X-User-ID, defaulting to the anonymous user.
func userIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := quota.NormalizeUser(c.GetHeader(headerUserID))
		c.Set(userKey, user)
		c.Request = c.Request.WithContext(services.WithUserID(c.Request.Context(), user))
		c.Next()
	}
}

func userFrom(c *gin.Context) string {
	return quota.NormalizeUser(c.GetString(userKey))
}

func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		attrs := []logging.Attr{
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", status),
			logging.Duration("elapsed", time.Since(start)),
			logging.String(logging.FieldEventType, "http_request"),
		}
		log := logging.WithContext(c.Request.Context(), logger)
		if status >= http.StatusInternalServerError {
			log.Warn("request failed", logging.Args(attrs...)...)
			return
		}
		log.Debug("request served", logging.Args(attrs...)...)
	}
}
