package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stridehq/stride/internal/auditcontext"
)

const (
	HeaderOrg        = "X-Org-ID"
	HeaderActorID    = "X-Actor-ID"
	HeaderActorName  = "X-Actor-Name"
	HeaderActorEmail = "X-Actor-Email"

	contextOrgIDKey = "org_id"
)

// OrgRequired resolves the acting organization from the X-Org-ID header and
// threads actor identity, client IP, and user agent through the request
// context for the audit pipeline.
func (s *Server) OrgRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOrg))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		orgID, err := snowflake.ParseString(raw)
		if err != nil || orgID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(contextOrgIDKey, orgID)

		ctx := auditcontext.WithActor(c.Request.Context(),
			strings.TrimSpace(c.GetHeader(HeaderActorID)),
			strings.TrimSpace(c.GetHeader(HeaderActorName)),
			strings.TrimSpace(c.GetHeader(HeaderActorEmail)),
		)
		ctx = auditcontext.WithIPAddress(ctx, c.ClientIP())
		ctx = auditcontext.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RateLimit throttles per organization.
func (s *Server) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, ok := s.orgIDFromRequest(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !s.limiter.Allow(orgID.String()) {
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

func (s *Server) orgIDFromRequest(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextOrgIDKey)
	if !ok {
		return 0, false
	}
	orgID, ok := value.(snowflake.ID)
	if !ok || orgID == 0 {
		return 0, false
	}
	return orgID, true
}
