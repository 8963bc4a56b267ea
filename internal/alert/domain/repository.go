package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is CRUD over alert rule configuration plus the delivery
// observability tables owned by the dispatcher.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rule *AlertRule) error
	Update(ctx context.Context, db *gorm.DB, rule *AlertRule) error
	Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*AlertRule, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]*AlertRule, error)
	ListActive(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]*AlertRule, error)

	InsertAttempt(ctx context.Context, db *gorm.DB, attempt *DeliveryAttempt) error
	ListAttempts(ctx context.Context, db *gorm.DB, orgID, ruleID snowflake.ID, limit int) ([]*DeliveryAttempt, error)

	InsertNotification(ctx context.Context, db *gorm.DB, notification *Notification) error
	ListNotifications(ctx context.Context, db *gorm.DB, orgID snowflake.ID, userID string, limit int) ([]*Notification, error)
	MarkNotificationRead(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, userID string) error
}
