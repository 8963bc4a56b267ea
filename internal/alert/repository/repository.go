package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/stridehq/stride/internal/alert/domain"
	"gorm.io/gorm"
)

type repositoryImpl struct{}

// Provide constructs the gorm-backed alert repository.
func Provide() alertdomain.Repository {
	return &repositoryImpl{}
}

const defaultListLimit = 50

func (r *repositoryImpl) Insert(ctx context.Context, db *gorm.DB, rule *alertdomain.AlertRule) error {
	if rule == nil || rule.OrgID == 0 {
		return alertdomain.ErrInvalidOrganization
	}
	return db.WithContext(ctx).Create(rule).Error
}

func (r *repositoryImpl) Update(ctx context.Context, db *gorm.DB, rule *alertdomain.AlertRule) error {
	if rule == nil || rule.OrgID == 0 {
		return alertdomain.ErrInvalidOrganization
	}
	result := db.WithContext(ctx).
		Model(&alertdomain.AlertRule{}).
		Where("id = ? AND org_id = ?", rule.ID, rule.OrgID).
		Select(
			"name", "description", "trigger_actions", "trigger_entities",
			"notify_roles", "notify_user_ids", "channel_in_app", "channel_email",
			"channel_webhook", "webhook_url", "webhook_secret",
			"cooldown_minutes", "is_active", "updated_at",
		).
		Updates(rule)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return alertdomain.ErrRuleNotFound
	}
	return nil
}

func (r *repositoryImpl) Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	result := db.WithContext(ctx).
		Where("id = ? AND org_id = ?", id, orgID).
		Delete(&alertdomain.AlertRule{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return alertdomain.ErrRuleNotFound
	}
	return nil
}

func (r *repositoryImpl) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*alertdomain.AlertRule, error) {
	var rule alertdomain.AlertRule
	err := db.WithContext(ctx).
		Where("id = ? AND org_id = ?", id, orgID).
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, alertdomain.ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *repositoryImpl) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]*alertdomain.AlertRule, error) {
	var rules []*alertdomain.AlertRule
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("id").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repositoryImpl) ListActive(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]*alertdomain.AlertRule, error) {
	var rules []*alertdomain.AlertRule
	err := db.WithContext(ctx).
		Where("org_id = ? AND is_active = ?", orgID, true).
		Order("id").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repositoryImpl) InsertAttempt(ctx context.Context, db *gorm.DB, attempt *alertdomain.DeliveryAttempt) error {
	if attempt == nil || attempt.OrgID == 0 {
		return alertdomain.ErrInvalidOrganization
	}
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(attempt).Error
}

func (r *repositoryImpl) ListAttempts(ctx context.Context, db *gorm.DB, orgID, ruleID snowflake.ID, limit int) ([]*alertdomain.DeliveryAttempt, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var attempts []*alertdomain.DeliveryAttempt
	err := db.WithContext(ctx).
		Where("org_id = ? AND rule_id = ?", orgID, ruleID).
		Order("attempted_at DESC, id DESC").
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *repositoryImpl) InsertNotification(ctx context.Context, db *gorm.DB, notification *alertdomain.Notification) error {
	if notification == nil || notification.OrgID == 0 {
		return alertdomain.ErrInvalidOrganization
	}
	return db.WithContext(ctx).Create(notification).Error
}

func (r *repositoryImpl) ListNotifications(ctx context.Context, db *gorm.DB, orgID snowflake.ID, userID string, limit int) ([]*alertdomain.Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var notifications []*alertdomain.Notification
	err := db.WithContext(ctx).
		Where("org_id = ? AND user_id = ?", orgID, userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repositoryImpl) MarkNotificationRead(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, userID string) error {
	now := time.Now().UTC()
	result := db.WithContext(ctx).
		Model(&alertdomain.Notification{}).
		Where("id = ? AND org_id = ? AND user_id = ? AND read_at IS NULL", id, orgID, userID).
		Update("read_at", now)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return alertdomain.ErrNotificationNotFound
	}
	return nil
}
