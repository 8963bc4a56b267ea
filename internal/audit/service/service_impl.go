package service

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stridehq/stride/internal/alert/cooldown"
	alertdomain "github.com/stridehq/stride/internal/alert/domain"
	"github.com/stridehq/stride/internal/alert/dispatch"
	"github.com/stridehq/stride/internal/alert/matcher"
	"github.com/stridehq/stride/internal/audit/diff"
	auditdomain "github.com/stridehq/stride/internal/audit/domain"
	"github.com/stridehq/stride/internal/clock"
	"github.com/stridehq/stride/internal/config"
	"github.com/stridehq/stride/internal/observability/logger"
	"github.com/stridehq/stride/internal/observability/metrics"
	"github.com/stridehq/stride/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     auditdomain.Repository
	AlertSvc alertdomain.Service
	Cooldown *cooldown.Tracker
	Worker   *dispatch.Worker
	Cfg      config.Config
	Metrics  *metrics.Alerting `optional:"true"`
}

// Service runs the audit pipeline for every mutating action and serves the
// admin query surface.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     auditdomain.Repository
	alertSvc alertdomain.Service
	cooldown *cooldown.Tracker
	worker   *dispatch.Worker
	metrics  *metrics.Alerting
	tracer   trace.Tracer

	bestEffort bool
	statsLoc   *time.Location
}

// NewService constructs the pipeline coordinator.
func NewService(p Params) auditdomain.Service {
	loc, err := time.LoadLocation(p.Cfg.StatsTimezone)
	if err != nil || loc == nil {
		loc = time.UTC
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("audit.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		alertSvc:   p.AlertSvc,
		cooldown:   p.Cooldown,
		worker:     p.Worker,
		metrics:    p.Metrics,
		tracer:     otel.Tracer("stride/audit"),
		bestEffort: p.Cfg.AuditBestEffort,
		statsLoc:   loc,
	}
}

// Record runs one event through the pipeline: diff, persist, match,
// cooldown, dispatch. Persistence is unconditional; matching and dispatch
// failures never surface to the caller and never roll the record back.
func (s *Service) Record(ctx context.Context, event auditdomain.Event) (*auditdomain.AuditLog, error) {
	ctx, span := s.tracer.Start(ctx, "audit.record", trace.WithAttributes(
		tracing.SafeAttributes(
			attribute.String("action", event.Action),
			attribute.String("entity_type", event.EntityType),
		)...,
	))
	defer span.End()

	if err := validateEvent(event); err != nil {
		return nil, err
	}

	// Only UPDATE carries a field diff; every other action stores an empty
	// changed_fields list alongside its raw state snapshots.
	var changedFields []string
	summary := strings.ToLower(event.Action)
	if event.Action == auditdomain.ActionUpdate {
		changedFields, summary = diff.Compute(event.Before, event.After, event.BeforeKeys, event.AfterKeys)
		if len(changedFields) == 0 {
			return nil, auditdomain.ErrNoChangedFields
		}
	}

	entry := s.buildEntry(event, changedFields)
	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		if !s.bestEffort {
			return nil, err
		}
		s.log.Error("audit write failed, continuing best-effort",
			zap.String("action", event.Action),
			zap.String("entity_type", event.EntityType),
			zap.Error(err),
		)
		return nil, nil
	}
	s.metrics.ObserveEventRecorded(event.Action)
	s.log.Debug("audit event recorded",
		zap.String("audit_log_id", entry.ID.String()),
		zap.String("summary", summary),
		zap.Any("after", logger.MaskJSON(event.After)),
	)

	s.alert(ctx, event, entry)
	return entry, nil
}

// alert runs matching, cooldown, and dispatch hand-off. Any failure here
// degrades to a log line: the audit trail does not depend on alerting.
func (s *Service) alert(ctx context.Context, event auditdomain.Event, entry *auditdomain.AuditLog) {
	rules, err := s.alertSvc.ActiveRules(ctx, event.OrgID)
	if err != nil {
		s.log.Warn("skipping alerting, rule fetch failed",
			zap.String("org_id", event.OrgID.String()),
			zap.Error(err),
		)
		return
	}

	now := s.clock.Now()
	for _, rule := range matcher.Match(event, rules) {
		if !s.cooldown.Allow(rule.ID, rule.OrgID, rule.CooldownMinutes, now) {
			s.metrics.ObserveSuppressed()
			continue
		}
		s.metrics.ObserveRuleFired()
		s.worker.Enqueue(dispatch.Job{Rule: rule, Record: entry})
	}
}

func (s *Service) buildEntry(event auditdomain.Event, changedFields []string) *auditdomain.AuditLog {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock.Now()
	}
	return &auditdomain.AuditLog{
		ID:            s.genID.Generate(),
		OrgID:         event.OrgID,
		ActorID:       event.ActorID,
		ActorName:     event.ActorName,
		ActorEmail:    event.ActorEmail,
		Action:        event.Action,
		EntityType:    event.EntityType,
		EntityID:      event.EntityID,
		EntityName:    event.EntityName,
		Before:        datatypes.JSONMap(event.Before),
		After:         datatypes.JSONMap(event.After),
		ChangedFields: alertdomain.EncodeStrings(changedFields),
		IPAddress:     event.IPAddress,
		UserAgent:     event.UserAgent,
		OccurredAt:    occurredAt,
		CreatedAt:     s.clock.Now(),
	}
}

func validateEvent(event auditdomain.Event) error {
	if event.OrgID == 0 {
		return auditdomain.ErrInvalidOrganization
	}
	if strings.TrimSpace(event.Action) == "" {
		return auditdomain.ErrMissingAction
	}
	if strings.TrimSpace(event.EntityType) == "" {
		return auditdomain.ErrMissingEntityType
	}
	if event.Action == auditdomain.ActionUpdate {
		if event.Before == nil {
			return auditdomain.ErrMissingBeforeState
		}
		if event.After == nil {
			return auditdomain.ErrMissingAfterState
		}
	}
	return nil
}

func (s *Service) Query(ctx context.Context, filter auditdomain.ListFilter) (auditdomain.ListResult, error) {
	logs, total, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return auditdomain.ListResult{}, err
	}
	// Mirror the repository clamp so total_pages agrees with the page size
	// actually served.
	limit := filter.Limit
	if limit <= 0 {
		limit = auditdomain.DefaultPageSize
	}
	if limit > auditdomain.MaxPageSize {
		limit = auditdomain.MaxPageSize
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return auditdomain.ListResult{
		Logs:       logs,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

func (s *Service) Stats(ctx context.Context, orgID snowflake.ID) (auditdomain.Stats, error) {
	return s.repo.Stats(ctx, s.db, orgID, s.clock.Now(), s.statsLoc)
}

func (s *Service) ExportCSV(ctx context.Context, orgID snowflake.ID, startAt, endAt *time.Time, w io.Writer) error {
	return s.repo.ExportCSV(ctx, s.db, orgID, startAt, endAt, w)
}
