package domain

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrMissingAction       = errors.New("missing_action")
	ErrMissingEntityType   = errors.New("missing_entity_type")
	ErrMissingBeforeState  = errors.New("missing_before_state")
	ErrMissingAfterState   = errors.New("missing_after_state")
	ErrNoChangedFields     = errors.New("no_changed_fields")
)

// Sink is the collaborator every mutating operation in the surrounding
// application depends on. Record runs the full pipeline for one event:
// diff, persist, match, cooldown, dispatch. The returned error reflects the
// persistence step only; alerting failures degrade to logs and metrics.
type Sink interface {
	Record(ctx context.Context, event Event) (*AuditLog, error)
}

// Service exposes the audit trail to the admin query surface in addition to
// the ingest path.
type Service interface {
	Sink
	Query(ctx context.Context, filter ListFilter) (ListResult, error)
	Stats(ctx context.Context, orgID snowflake.ID) (Stats, error)
	ExportCSV(ctx context.Context, orgID snowflake.ID, startAt, endAt *time.Time, w io.Writer) error
}
