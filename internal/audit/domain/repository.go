package domain

import (
	"context"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists audit records. It is append-only: there is no update
// or delete. Every method is scoped by org id at the storage boundary.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, int64, error)
	Stats(ctx context.Context, db *gorm.DB, orgID snowflake.ID, now time.Time, loc *time.Location) (Stats, error)
	ExportCSV(ctx context.Context, db *gorm.DB, orgID snowflake.ID, startAt, endAt *time.Time, w io.Writer) error
}
