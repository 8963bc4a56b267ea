package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EntityWildcard inside TriggerEntities makes a rule match every entity
// type. A set containing the wildcard plus specific types behaves exactly
// like the wildcard alone.
const EntityWildcard = "*"

// Delivery channels.
const (
	ChannelInApp   = "IN_APP"
	ChannelEmail   = "EMAIL"
	ChannelWebhook = "WEBHOOK"
)

// Delivery statuses.
const (
	StatusPending = "PENDING"
	StatusSent    = "SENT"
	StatusFailed  = "FAILED"
)

// AlertRule is tenant-configured criteria deciding whether an audit event
// should notify humans, and through which channels.
type AlertRule struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID   `gorm:"index;not null" json:"org_id"`
	Name            string         `gorm:"type:text;not null" json:"name"`
	Description     string         `gorm:"type:text" json:"description"`
	TriggerActions  datatypes.JSON `gorm:"type:jsonb;not null" json:"trigger_actions"`
	TriggerEntities datatypes.JSON `gorm:"type:jsonb;not null" json:"trigger_entities"`
	NotifyRoles     datatypes.JSON `gorm:"type:jsonb" json:"notify_roles"`
	NotifyUserIDs   datatypes.JSON `gorm:"type:jsonb" json:"notify_user_ids"`
	ChannelInApp    bool           `gorm:"not null;default:false" json:"channel_in_app"`
	ChannelEmail    bool           `gorm:"not null;default:false" json:"channel_email"`
	ChannelWebhook  bool           `gorm:"not null;default:false" json:"channel_webhook"`
	WebhookURL      string         `gorm:"type:text" json:"webhook_url"`
	WebhookSecret   string         `gorm:"type:text" json:"-"`
	CooldownMinutes int            `gorm:"not null;default:0" json:"cooldown_minutes"`
	IsActive        bool           `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (AlertRule) TableName() string { return "alert_rules" }

// TriggerActionSet decodes the stored action list.
func (r *AlertRule) TriggerActionSet() []string { return decodeStrings(r.TriggerActions) }

// TriggerEntitySet decodes the stored entity-type list.
func (r *AlertRule) TriggerEntitySet() []string { return decodeStrings(r.TriggerEntities) }

// NotifyRoleSet decodes the stored role list.
func (r *AlertRule) NotifyRoleSet() []string { return decodeStrings(r.NotifyRoles) }

// NotifyUserIDSet decodes the stored explicit recipient list.
func (r *AlertRule) NotifyUserIDSet() []string { return decodeStrings(r.NotifyUserIDs) }

// MatchesEntity reports whether the rule covers the given entity type.
func (r *AlertRule) MatchesEntity(entityType string) bool {
	entities := r.TriggerEntitySet()
	for _, entity := range entities {
		if entity == EntityWildcard {
			return true
		}
	}
	for _, entity := range entities {
		if entity == entityType {
			return true
		}
	}
	return false
}

// MatchesAction reports whether the rule covers the given action.
func (r *AlertRule) MatchesAction(action string) bool {
	for _, candidate := range r.TriggerActionSet() {
		if candidate == action {
			return true
		}
	}
	return false
}

// DeliveryAttempt records one channel delivery for one firing, successful or
// not. At most one attempt per channel per firing.
type DeliveryAttempt struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"index;not null" json:"org_id"`
	RuleID      snowflake.ID `gorm:"index;not null" json:"rule_id"`
	AuditLogID  snowflake.ID `gorm:"index;not null" json:"audit_log_id"`
	Channel     string       `gorm:"type:text;not null" json:"channel"`
	Status      string       `gorm:"type:text;not null" json:"status"`
	Error       string       `gorm:"type:text" json:"error,omitempty"`
	AttemptedAt time.Time    `gorm:"not null" json:"attempted_at"`
}

// TableName sets the database table name.
func (DeliveryAttempt) TableName() string { return "delivery_attempts" }

// Notification is the durable in-app channel record, one per recipient.
type Notification struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID `gorm:"index;not null" json:"org_id"`
	UserID     string       `gorm:"type:text;not null;index" json:"user_id"`
	RuleID     snowflake.ID `gorm:"not null" json:"rule_id"`
	AuditLogID snowflake.ID `gorm:"not null" json:"audit_log_id"`
	Title      string       `gorm:"type:text;not null" json:"title"`
	Body       string       `gorm:"type:text" json:"body"`
	ReadAt     *time.Time   `json:"read_at,omitempty"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }

func decodeStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}
	return values
}

// EncodeStrings stores a string list in a jsonb column.
func EncodeStrings(values []string) datatypes.JSON {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}
