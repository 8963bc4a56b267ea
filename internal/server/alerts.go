package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	alertdomain "github.com/stridehq/stride/internal/alert/domain"
)

type alertRuleRequest struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	TriggerActions  []string `json:"trigger_actions"`
	TriggerEntities []string `json:"trigger_entities"`
	NotifyRoles     []string `json:"notify_roles"`
	NotifyUserIDs   []string `json:"notify_user_ids"`
	ChannelInApp    bool     `json:"channel_in_app"`
	ChannelEmail    bool     `json:"channel_email"`
	ChannelWebhook  bool     `json:"channel_webhook"`
	WebhookURL      string   `json:"webhook_url"`
	WebhookSecret   string   `json:"webhook_secret"`
	CooldownMinutes int      `json:"cooldown_minutes"`
	IsActive        bool     `json:"is_active"`
}

func (r alertRuleRequest) toInput() alertdomain.RuleInput {
	return alertdomain.RuleInput{
		Name:            r.Name,
		Description:     r.Description,
		TriggerActions:  r.TriggerActions,
		TriggerEntities: r.TriggerEntities,
		NotifyRoles:     r.NotifyRoles,
		NotifyUserIDs:   r.NotifyUserIDs,
		ChannelInApp:    r.ChannelInApp,
		ChannelEmail:    r.ChannelEmail,
		ChannelWebhook:  r.ChannelWebhook,
		WebhookURL:      r.WebhookURL,
		WebhookSecret:   r.WebhookSecret,
		CooldownMinutes: r.CooldownMinutes,
		IsActive:        r.IsActive,
	}
}

func (s *Server) ListAlertRules(c *gin.Context) {
	orgID, ok := s.orgIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	rules, err := s.alertSvc.ListRules(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rules})
}

func (s *Server) CreateAlertRule(c *gin.Context) {
	orgID, ok := s.orgIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req alertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rule, err := s.alertSvc.CreateRule(c.Request.Context(), orgID, req.toInput())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": rule})
}

func (s *Server) GetAlertRule(c *gin.Context) {
	orgID, ok := s.orgIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	ruleID, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rule, err := s.alertSvc.GetRule(c.Request.Context(), orgID, ruleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) UpdateAlertRule(c *gin.Context) {
	orgID, ok := s.orgIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	ruleID, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req alertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rule, err := s.alertSvc.UpdateRule(c.Request.Context(), orgID, ruleID, req.toInput())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) DeleteAlertRule(c *gin.Context) {
	orgID, ok := s.orgIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	ruleID, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.alertSvc.DeleteRule(c.Request.Context(), orgID, ruleID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) ListRuleDeliveries(c *gin.Context) {
	orgID, ok := s.orgIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	ruleID, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	attempts, err := s.alertSvc.ListDeliveries(c.Request.Context(), orgID, ruleID, intQuery(c, "limit", 50))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": attempts})
}

func pathID(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param("id"))
	if raw == "" {
		return 0, newValidationError("id", "missing_id", "id is required")
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, newValidationError("id", "invalid_id", "id must be a snowflake")
	}
	return id, nil
}
