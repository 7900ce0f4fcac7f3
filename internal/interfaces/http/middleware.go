package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/application/service"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
)

const actorKey = "dashboard.actor"

// loggingMiddleware logs one line per request
func loggingMiddleware(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// authMiddleware resolves the bearer token to an actor. Users without a
// profile act as members.
func authMiddleware(tokens port.TokenVerifier, profiles service.ProfileService, logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			fail(c, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			logger.Info("Rejected token", "path", c.Request.URL.Path, "error", err)
			fail(c, http.StatusUnauthorized, "invalid token")
			return
		}

		actor, err := profiles.Actor(c.Request.Context(), userID)
		if err != nil {
			logger.Error("Failed to resolve actor", "user_id", userID, "error", err)
			fail(c, http.StatusInternalServerError, "internal server error")
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// actorFrom returns the actor set by authMiddleware
func actorFrom(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Actor{}
}
