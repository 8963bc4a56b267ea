package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Well-known actions. The vocabulary is open-ended: new actions only need to
// be added to the configuration allow-list, not to this file.
const (
	ActionCreate      = "CREATE"
	ActionUpdate      = "UPDATE"
	ActionDelete      = "DELETE"
	ActionLogin       = "LOGIN"
	ActionLoginFailed = "LOGIN_FAILED"
	ActionExportCSV   = "EXPORT_CSV"
)

// Event describes one mutating action as submitted by the surrounding
// application. It is transient: the pipeline derives an immutable AuditLog
// from it and the event itself is never stored.
type Event struct {
	OrgID      snowflake.ID
	ActorID    string
	ActorName  string
	ActorEmail string
	Action     string
	EntityType string
	EntityID   string
	EntityName string
	Before     map[string]any
	After      map[string]any
	// BeforeKeys and AfterKeys carry the submitted field order of the state
	// payloads, which map decoding loses. Nil falls back to sorted order.
	BeforeKeys []string
	AfterKeys  []string
	IPAddress  string
	UserAgent  string
	OccurredAt time.Time
}

// AuditLog is the persisted, append-only record of one Event plus its
// computed field diff. Rows are never updated or deleted by the application.
type AuditLog struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID      `gorm:"index;not null" json:"org_id"`
	ActorID       string            `gorm:"type:text" json:"actor_id"`
	ActorName     string            `gorm:"type:text" json:"actor_name"`
	ActorEmail    string            `gorm:"type:text" json:"actor_email"`
	Action        string            `gorm:"type:text;not null;index" json:"action"`
	EntityType    string            `gorm:"type:text;not null;index" json:"entity_type"`
	EntityID      string            `gorm:"type:text" json:"entity_id"`
	EntityName    string            `gorm:"type:text" json:"entity_name"`
	Before        datatypes.JSONMap `gorm:"type:jsonb" json:"before,omitempty"`
	After         datatypes.JSONMap `gorm:"type:jsonb" json:"after,omitempty"`
	ChangedFields datatypes.JSON    `gorm:"type:jsonb" json:"changed_fields"`
	IPAddress     string            `gorm:"type:text" json:"ip_address"`
	UserAgent     string            `gorm:"type:text" json:"user_agent"`
	OccurredAt    time.Time         `gorm:"not null" json:"occurred_at"`
	CreatedAt     time.Time         `gorm:"not null;index" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// ChangedFieldNames decodes the stored diff. A malformed or empty column
// decodes to nil.
func (l *AuditLog) ChangedFieldNames() []string {
	if len(l.ChangedFields) == 0 {
		return nil
	}
	var fields []string
	if err := json.Unmarshal(l.ChangedFields, &fields); err != nil {
		return nil
	}
	return fields
}

// Pagination bounds shared by the repository and the query service.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListFilter narrows an audit query. Zero values mean "no constraint";
// filters combine with AND semantics. OrgID is mandatory and enforced by the
// repository regardless of the other fields.
type ListFilter struct {
	OrgID      snowflake.ID
	Search     string
	Action     string
	EntityType string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
	Page       int
	Limit      int
}

// ListResult is one page of audit records plus pagination totals.
type ListResult struct {
	Logs       []*AuditLog `json:"logs"`
	Total      int64       `json:"total"`
	TotalPages int         `json:"total_pages"`
}

// Stats summarizes recent audit activity for one organization.
type Stats struct {
	Today       int64 `json:"today"`
	ThisWeek    int64 `json:"this_week"`
	ActiveUsers int64 `json:"active_users"`
}
