package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stridehq/stride/internal/auditcontext"
)

// notificationUserID resolves the acting user: the actor header normally,
// with a user_id query override for service-to-service callers.
func notificationUserID(c *gin.Context) string {
	if userID := strings.TrimSpace(c.Query("user_id")); userID != "" {
		return userID
	}
	actorID, _, _ := auditcontext.ActorFromContext(c.Request.Context())
	return actorID
}

func (s *Server) ListNotifications(c *gin.Context) {
	orgID, ok := s.orgIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	userID := notificationUserID(c)
	if userID == "" {
		AbortWithError(c, newValidationError("user_id", "missing_user", "user id is required"))
		return
	}

	notifications, err := s.alertSvc.ListNotifications(c.Request.Context(), orgID, userID, intQuery(c, "limit", 50))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": notifications})
}

func (s *Server) MarkNotificationRead(c *gin.Context) {
	orgID, ok := s.orgIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	userID := notificationUserID(c)
	if userID == "" {
		AbortWithError(c, newValidationError("user_id", "missing_user", "user id is required"))
		return
	}

	if err := s.alertSvc.MarkNotificationRead(c.Request.Context(), orgID, id, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
