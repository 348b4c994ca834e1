package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spigell/talentflow/internal/dialogue"
	"github.com/spigell/talentflow/internal/logger"
	"go.uber.org/zap"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserType = "X-User-Type"

	ctxUserID   = "user_id"
	ctxUserType = "user_type"
)

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Requested-With", HeaderUserID, HeaderUserType},
		AllowCredentials: true,
	})
}

// identity trusts the caller-supplied headers. There is no authentication here.
func identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			respondError(c, http.StatusBadRequest, codeBadRequest, errors.New("missing "+HeaderUserID+" header"))
			return
		}

		userType := strings.TrimSpace(c.GetHeader(HeaderUserType))
		switch userType {
		case "":
			userType = dialogue.UserTypeCandidate
		case dialogue.UserTypeCandidate, dialogue.UserTypeJobPoster:
		default:
			respondError(c, http.StatusBadRequest, codeBadRequest, errors.New("unsupported user type "+userType))
			return
		}

		c.Set(ctxUserID, userID)
		c.Set(ctxUserType, userType)
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if userID := c.GetString(ctxUserID); userID != "" {
			fields = append(fields, zap.String(logger.FieldUserID, userID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("request failed", fields...)
			return
		}
		log.Debug("request", fields...)
	}
}
