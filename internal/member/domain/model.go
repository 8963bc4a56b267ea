package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Member is one user's membership in an organization. The table is owned by
// the surrounding application; this service reads it only to resolve alert
// recipients.
type Member struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"index;not null" json:"org_id"`
	UserID    string       `gorm:"type:text;not null" json:"user_id"`
	Name      string       `gorm:"type:text" json:"name"`
	Email     string       `gorm:"type:text" json:"email"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "organization_members" }

// Repository resolves members for recipient fan-out, scoped by org.
type Repository interface {
	ListByRoles(ctx context.Context, db *gorm.DB, orgID snowflake.ID, roles []string) ([]*Member, error)
	ListByUserIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, userIDs []string) ([]*Member, error)
}
