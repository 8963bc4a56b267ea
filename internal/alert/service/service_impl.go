package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/stridehq/stride/internal/alert/domain"
	"github.com/stridehq/stride/internal/cache"
	"github.com/stridehq/stride/internal/clock"
	"github.com/stridehq/stride/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  alertdomain.Repository
	Cfg   config.Config
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     alertdomain.Repository
	cfg      config.Config
	actions  map[string]struct{}
	entities map[string]struct{}

	activeRules cache.Cache[snowflake.ID, []*alertdomain.AlertRule]
	cacheTTL    time.Duration
}

// NewService constructs the alert rule configuration service.
func NewService(p Params) alertdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("alert.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		cfg:         p.Cfg,
		actions:     toSet(p.Cfg.AllowedActions),
		entities:    toSet(p.Cfg.AllowedEntityTypes),
		activeRules: cache.NewTTLCache[snowflake.ID, []*alertdomain.AlertRule](),
		cacheTTL:    p.Cfg.RuleCacheTTL,
	}
}

func (s *Service) CreateRule(ctx context.Context, orgID snowflake.ID, input alertdomain.RuleInput) (*alertdomain.AlertRule, error) {
	if orgID == 0 {
		return nil, alertdomain.ErrInvalidOrganization
	}
	normalized, err := s.validate(input)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rule := &alertdomain.AlertRule{
		ID:              s.genID.Generate(),
		OrgID:           orgID,
		Name:            normalized.Name,
		Description:     normalized.Description,
		TriggerActions:  alertdomain.EncodeStrings(normalized.TriggerActions),
		TriggerEntities: alertdomain.EncodeStrings(normalized.TriggerEntities),
		NotifyRoles:     alertdomain.EncodeStrings(normalized.NotifyRoles),
		NotifyUserIDs:   alertdomain.EncodeStrings(normalized.NotifyUserIDs),
		ChannelInApp:    normalized.ChannelInApp,
		ChannelEmail:    normalized.ChannelEmail,
		ChannelWebhook:  normalized.ChannelWebhook,
		WebhookURL:      normalized.WebhookURL,
		WebhookSecret:   normalized.WebhookSecret,
		CooldownMinutes: normalized.CooldownMinutes,
		IsActive:        normalized.IsActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, s.db, rule); err != nil {
		return nil, err
	}
	s.activeRules.Delete(orgID)
	return rule, nil
}

func (s *Service) UpdateRule(ctx context.Context, orgID, id snowflake.ID, input alertdomain.RuleInput) (*alertdomain.AlertRule, error) {
	if orgID == 0 {
		return nil, alertdomain.ErrInvalidOrganization
	}
	normalized, err := s.validate(input)
	if err != nil {
		return nil, err
	}

	rule := &alertdomain.AlertRule{
		ID:              id,
		OrgID:           orgID,
		Name:            normalized.Name,
		Description:     normalized.Description,
		TriggerActions:  alertdomain.EncodeStrings(normalized.TriggerActions),
		TriggerEntities: alertdomain.EncodeStrings(normalized.TriggerEntities),
		NotifyRoles:     alertdomain.EncodeStrings(normalized.NotifyRoles),
		NotifyUserIDs:   alertdomain.EncodeStrings(normalized.NotifyUserIDs),
		ChannelInApp:    normalized.ChannelInApp,
		ChannelEmail:    normalized.ChannelEmail,
		ChannelWebhook:  normalized.ChannelWebhook,
		WebhookURL:      normalized.WebhookURL,
		WebhookSecret:   normalized.WebhookSecret,
		CooldownMinutes: normalized.CooldownMinutes,
		IsActive:        normalized.IsActive,
		UpdatedAt:       s.clock.Now(),
	}
	if err := s.repo.Update(ctx, s.db, rule); err != nil {
		return nil, err
	}
	s.activeRules.Delete(orgID)
	return s.repo.FindByID(ctx, s.db, orgID, id)
}

func (s *Service) DeleteRule(ctx context.Context, orgID, id snowflake.ID) error {
	if orgID == 0 {
		return alertdomain.ErrInvalidOrganization
	}
	if err := s.repo.Delete(ctx, s.db, orgID, id); err != nil {
		return err
	}
	s.activeRules.Delete(orgID)
	return nil
}

func (s *Service) GetRule(ctx context.Context, orgID, id snowflake.ID) (*alertdomain.AlertRule, error) {
	if orgID == 0 {
		return nil, alertdomain.ErrInvalidOrganization
	}
	return s.repo.FindByID(ctx, s.db, orgID, id)
}

func (s *Service) ListRules(ctx context.Context, orgID snowflake.ID) ([]*alertdomain.AlertRule, error) {
	if orgID == 0 {
		return nil, alertdomain.ErrInvalidOrganization
	}
	return s.repo.List(ctx, s.db, orgID)
}

func (s *Service) ActiveRules(ctx context.Context, orgID snowflake.ID) ([]*alertdomain.AlertRule, error) {
	if orgID == 0 {
		return nil, alertdomain.ErrInvalidOrganization
	}
	if rules, ok := s.activeRules.Get(orgID); ok {
		return rules, nil
	}
	rules, err := s.repo.ListActive(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	s.activeRules.Set(orgID, rules, s.cacheTTL)
	return rules, nil
}

func (s *Service) ListDeliveries(ctx context.Context, orgID, ruleID snowflake.ID, limit int) ([]*alertdomain.DeliveryAttempt, error) {
	if orgID == 0 {
		return nil, alertdomain.ErrInvalidOrganization
	}
	if _, err := s.repo.FindByID(ctx, s.db, orgID, ruleID); err != nil {
		return nil, err
	}
	return s.repo.ListAttempts(ctx, s.db, orgID, ruleID, limit)
}

func (s *Service) ListNotifications(ctx context.Context, orgID snowflake.ID, userID string, limit int) ([]*alertdomain.Notification, error) {
	if orgID == 0 {
		return nil, alertdomain.ErrInvalidOrganization
	}
	return s.repo.ListNotifications(ctx, s.db, orgID, strings.TrimSpace(userID), limit)
}

func (s *Service) MarkNotificationRead(ctx context.Context, orgID, id snowflake.ID, userID string) error {
	if orgID == 0 {
		return alertdomain.ErrInvalidOrganization
	}
	return s.repo.MarkNotificationRead(ctx, s.db, orgID, id, strings.TrimSpace(userID))
}

// validate enforces the rule-configuration contract so the matcher and the
// dispatcher can assume well-formed rules.
func (s *Service) validate(input alertdomain.RuleInput) (alertdomain.RuleInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return input, alertdomain.ErrInvalidName
	}
	input.Description = strings.TrimSpace(input.Description)

	input.TriggerActions = normalizeList(input.TriggerActions)
	if len(input.TriggerActions) == 0 {
		return input, alertdomain.ErrEmptyTriggerActions
	}
	for _, action := range input.TriggerActions {
		if _, ok := s.actions[action]; !ok {
			return input, alertdomain.ErrUnknownAction
		}
	}

	input.TriggerEntities = normalizeList(input.TriggerEntities)
	if len(input.TriggerEntities) == 0 {
		return input, alertdomain.ErrEmptyTriggerEntities
	}
	for _, entity := range input.TriggerEntities {
		if entity == alertdomain.EntityWildcard {
			continue
		}
		if _, ok := s.entities[entity]; !ok {
			return input, alertdomain.ErrUnknownEntityType
		}
	}

	input.NotifyRoles = normalizeList(input.NotifyRoles)
	input.NotifyUserIDs = normalizeList(input.NotifyUserIDs)

	if input.CooldownMinutes < 0 {
		return input, alertdomain.ErrNegativeCooldown
	}

	input.WebhookURL = strings.TrimSpace(input.WebhookURL)
	input.WebhookSecret = strings.TrimSpace(input.WebhookSecret)
	if input.ChannelWebhook {
		if input.WebhookURL == "" {
			return input, alertdomain.ErrMissingWebhookURL
		}
		parsed, err := url.Parse(input.WebhookURL)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return input, alertdomain.ErrInvalidWebhookURL
		}
	}

	return input, nil
}

func normalizeList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[strings.TrimSpace(value)] = struct{}{}
	}
	return set
}
