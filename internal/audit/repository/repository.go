package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/stridehq/stride/internal/audit/domain"
	"gorm.io/gorm"
)

type repositoryImpl struct{}

// Provide constructs the gorm-backed audit repository.
func Provide() auditdomain.Repository {
	return &repositoryImpl{}
}

func (r *repositoryImpl) Insert(ctx context.Context, db *gorm.DB, entry *auditdomain.AuditLog) error {
	if entry == nil {
		return errors.New("missing_audit_entry")
	}
	if entry.OrgID == 0 {
		return auditdomain.ErrInvalidOrganization
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repositoryImpl) List(ctx context.Context, db *gorm.DB, filter auditdomain.ListFilter) ([]*auditdomain.AuditLog, int64, error) {
	if filter.OrgID == 0 {
		return nil, 0, auditdomain.ErrInvalidOrganization
	}

	query := r.scoped(ctx, db, filter.OrgID)
	query = applyFilters(query, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = auditdomain.DefaultPageSize
	}
	if limit > auditdomain.MaxPageSize {
		limit = auditdomain.MaxPageSize
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	var logs []*auditdomain.AuditLog
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func (r *repositoryImpl) Stats(ctx context.Context, db *gorm.DB, orgID snowflake.ID, now time.Time, loc *time.Location) (auditdomain.Stats, error) {
	var stats auditdomain.Stats
	if orgID == 0 {
		return stats, auditdomain.ErrInvalidOrganization
	}
	if loc == nil {
		loc = time.UTC
	}

	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	weekStart := startOfISOWeek(local, loc)

	if err := r.scoped(ctx, db, orgID).
		Where("created_at >= ?", dayStart).
		Count(&stats.Today).Error; err != nil {
		return stats, err
	}
	if err := r.scoped(ctx, db, orgID).
		Where("created_at >= ?", weekStart).
		Count(&stats.ThisWeek).Error; err != nil {
		return stats, err
	}
	if err := r.scoped(ctx, db, orgID).
		Where("created_at >= ?", weekStart).
		Where("actor_id <> ''").
		Distinct("actor_id").
		Count(&stats.ActiveUsers).Error; err != nil {
		return stats, err
	}
	return stats, nil
}

// csvHeader is a published compatibility surface: never reorder or rename.
var csvHeader = []string{
	"ID", "Date", "User", "Email", "Action", "Entity Type", "Entity Name", "Changed Fields", "IP Address",
}

func (r *repositoryImpl) ExportCSV(ctx context.Context, db *gorm.DB, orgID snowflake.ID, startAt, endAt *time.Time, w io.Writer) error {
	if orgID == 0 {
		return auditdomain.ErrInvalidOrganization
	}

	query := r.scoped(ctx, db, orgID)
	if startAt != nil {
		query = query.Where("created_at >= ?", *startAt)
	}
	if endAt != nil {
		query = query.Where("created_at <= ?", *endAt)
	}

	rows, err := query.Order("created_at DESC, id DESC").Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for rows.Next() {
		var entry auditdomain.AuditLog
		if err := db.ScanRows(rows, &entry); err != nil {
			return err
		}
		if err := writer.Write([]string{
			entry.ID.String(),
			entry.CreatedAt.UTC().Format(time.RFC3339),
			entry.ActorName,
			entry.ActorEmail,
			entry.Action,
			entry.EntityType,
			entry.EntityName,
			strings.Join(entry.ChangedFieldNames(), ", "),
			entry.IPAddress,
		}); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	writer.Flush()
	return writer.Error()
}

// scoped returns a query restricted to one organization's rows. Tenant
// isolation lives here, not in caller-supplied filters.
func (r *repositoryImpl) scoped(ctx context.Context, db *gorm.DB, orgID snowflake.ID) *gorm.DB {
	return db.WithContext(ctx).
		Model(&auditdomain.AuditLog{}).
		Where("org_id = ?", orgID)
}

func applyFilters(query *gorm.DB, filter auditdomain.ListFilter) *gorm.DB {
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(actor_name) LIKE ? OR LOWER(action) LIKE ? OR LOWER(entity_name) LIKE ?",
			pattern, pattern, pattern,
		)
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		query = query.Where("action = ?", action)
	}
	if entityType := strings.TrimSpace(filter.EntityType); entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	if actorID := strings.TrimSpace(filter.ActorID); actorID != "" {
		query = query.Where("actor_id = ?", actorID)
	}
	if filter.StartAt != nil {
		query = query.Where("created_at >= ?", *filter.StartAt)
	}
	if filter.EndAt != nil {
		query = query.Where("created_at <= ?", *filter.EndAt)
	}
	return query
}

func startOfISOWeek(local time.Time, loc *time.Location) time.Time {
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return day.AddDate(0, 0, -(weekday - 1))
}

