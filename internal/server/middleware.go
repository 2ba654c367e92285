package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/schoolfee/internal/auditcontext"
	obslogger "github.com/smallbiznis/schoolfee/internal/observability/logger"
	"github.com/smallbiznis/schoolfee/internal/ratelimit"
	"github.com/smallbiznis/schoolfee/internal/schoolcontext"
	"go.uber.org/zap"
)

const (
	HeaderSchoolID = "X-School-ID"
	HeaderActorID  = "X-Actor-ID"

	contextKeyActorID = "actor_id"
)

// SchoolContext resolves the tenant and the acting staff member from the
// gateway headers. Requests without a staff id are rejected before any
// handler runs.
func (s *Server) SchoolContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if actorID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		schoolID, err := snowflake.ParseString(strings.TrimSpace(c.GetHeader(HeaderSchoolID)))
		if err != nil || schoolID == 0 {
			AbortWithError(c, newValidationError("school_id", "invalid_school", "X-School-ID header is required"))
			return
		}

		ctx := schoolcontext.WithSchoolID(c.Request.Context(), schoolID)
		ctx = auditcontext.WithActor(ctx, auditcontext.ActorTypeStaff, actorID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextKeyActorID, actorID)
		c.Next()
	}
}

func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.GetString(contextKeyActorID)
		schoolID, _ := schoolcontext.SchoolIDFromContext(c.Request.Context())
		if err := s.authzSvc.Authorize(c.Request.Context(), auditcontext.ActorTypeStaff+":"+actorID, schoolID.String(), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// SchoolRateLimit throttles expensive endpoints per school. Limiter errors
// fail open so a Redis outage never blocks billing.
func (s *Server) SchoolRateLimit(action ratelimit.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}
		schoolID, _ := schoolcontext.SchoolIDFromContext(c.Request.Context())
		res, err := s.limiter.Allow(c.Request.Context(), schoolID.String(), action)
		if err != nil {
			obslogger.FromContext(c.Request.Context()).Warn("school rate limit check failed",
				zap.String("school_id", schoolID.String()),
				zap.String("action", string(action)),
				zap.Error(err),
			)
			c.Next()
			return
		}
		if res == nil || res.Allowed {
			c.Next()
			return
		}

		obslogger.FromContext(c.Request.Context()).Warn("school rate limit exceeded",
			zap.String("school_id", schoolID.String()),
			zap.String("action", string(action)),
			zap.Int("limit", res.Limit),
		)
		c.Header("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(res)))
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
			Type:    ErrRateLimited.Error(),
			Message: "too many requests",
		}})
	}
}
