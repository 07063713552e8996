package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"library-api/internal/domain"
)

const (
	requestIDKey   = "request_id"
	currentUserKey = "current_user"
)

// Counter is the part of the redis client the rate limiter needs.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

var _ Counter = (*redis.Client)(nil)

// requestID reuses or generates an X-Request-Id for each request.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.Request.Header.Get("X-Request-Id")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set("X-Request-Id", rid)
		c.Next()
	}
}

func accessLog(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		entry := logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.ClientIP(),
			"request_id": c.GetString(requestIDKey),
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Warn("request completed with errors")
		} else {
			entry.Info("request completed")
		}
	}
}

// rateLimit counts requests per key in a fixed redis window. Counter errors
// let the request through.
func rateLimit(counter Counter, prefix string, limit int, window time.Duration, keyFn func(*gin.Context) string, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" {
			c.Next()
			return
		}
		rkey := fmt.Sprintf("rl:%s:%s", prefix, key)
		ctx := c.Request.Context()

		cnt, err := counter.Incr(ctx, rkey).Result()
		if err != nil {
			logger.WithError(err).Warn("rate limit counter unavailable")
			c.Next()
			return
		}
		if cnt == 1 {
			if err := counter.Expire(ctx, rkey, window).Err(); err != nil {
				logger.WithError(err).Warn("set rate limit window")
			}
		}
		if cnt > int64(limit) {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			writeError(c, http.StatusTooManyRequests, "rate_limited")
			return
		}
		c.Next()
	}
}

// requireUser resolves the bearer token to a user and stores it on the context.
func (h *Handler) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			writeError(c, http.StatusUnauthorized, "Not authenticated")
			return
		}

		user, err := h.auth.CurrentUser(c.Request.Context(), token)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.Set(currentUserKey, user)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func currentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*domain.User)
	return user
}

func (h *Handler) requestLogger(c *gin.Context) *logrus.Entry {
	return h.logger.WithFields(logrus.Fields{
		"request_id": c.GetString(requestIDKey),
		"path":       c.Request.URL.Path,
	})
}
