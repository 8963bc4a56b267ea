package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidOrganization   = errors.New("invalid_organization")
	ErrRuleNotFound          = errors.New("rule_not_found")
	ErrInvalidName           = errors.New("invalid_name")
	ErrEmptyTriggerActions   = errors.New("empty_trigger_actions")
	ErrUnknownAction         = errors.New("unknown_action")
	ErrEmptyTriggerEntities  = errors.New("empty_trigger_entities")
	ErrUnknownEntityType     = errors.New("unknown_entity_type")
	ErrMissingWebhookURL     = errors.New("missing_webhook_url")
	ErrInvalidWebhookURL     = errors.New("invalid_webhook_url")
	ErrNegativeCooldown      = errors.New("negative_cooldown")
	ErrNotificationNotFound  = errors.New("notification_not_found")
)

// RuleInput carries the caller-supplied fields for creating or updating a
// rule. Validation happens here, at the configuration boundary, so the
// matcher can assume well-formed rules.
type RuleInput struct {
	Name            string
	Description     string
	TriggerActions  []string
	TriggerEntities []string
	NotifyRoles     []string
	NotifyUserIDs   []string
	ChannelInApp    bool
	ChannelEmail    bool
	ChannelWebhook  bool
	WebhookURL      string
	WebhookSecret   string
	CooldownMinutes int
	IsActive        bool
}

// Service manages alert rule configuration and the read surfaces for
// delivery attempts and in-app notifications.
type Service interface {
	CreateRule(ctx context.Context, orgID snowflake.ID, input RuleInput) (*AlertRule, error)
	UpdateRule(ctx context.Context, orgID, id snowflake.ID, input RuleInput) (*AlertRule, error)
	DeleteRule(ctx context.Context, orgID, id snowflake.ID) error
	GetRule(ctx context.Context, orgID, id snowflake.ID) (*AlertRule, error)
	ListRules(ctx context.Context, orgID snowflake.ID) ([]*AlertRule, error)

	// ActiveRules serves the matcher, through a short-lived cache so a
	// just-disabled rule stops firing within the cache TTL.
	ActiveRules(ctx context.Context, orgID snowflake.ID) ([]*AlertRule, error)

	ListDeliveries(ctx context.Context, orgID, ruleID snowflake.ID, limit int) ([]*DeliveryAttempt, error)
	ListNotifications(ctx context.Context, orgID snowflake.ID, userID string, limit int) ([]*Notification, error)
	MarkNotificationRead(ctx context.Context, orgID, id snowflake.ID, userID string) error
}
