package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stridehq/stride/internal/auditcontext"
	auditdomain "github.com/stridehq/stride/internal/audit/domain"
)

type recordAuditEventRequest struct {
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	EntityName string          `json:"entity_name"`
	Before     json.RawMessage `json:"before"`
	After      json.RawMessage `json:"after"`
	OccurredAt *time.Time      `json:"occurred_at"`
}

func (s *Server) RecordAuditEvent(c *gin.Context) {
	orgID, ok := s.orgIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req recordAuditEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	before, beforeKeys, err := decodeStatePayload(req.Before)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	after, afterKeys, err := decodeStatePayload(req.After)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	actorID, actorName, actorEmail := auditcontext.ActorFromContext(ctx)
	event := auditdomain.Event{
		OrgID:      orgID,
		ActorID:    actorID,
		ActorName:  actorName,
		ActorEmail: actorEmail,
		Action:     strings.TrimSpace(req.Action),
		EntityType: strings.TrimSpace(req.EntityType),
		EntityID:   strings.TrimSpace(req.EntityID),
		EntityName: strings.TrimSpace(req.EntityName),
		Before:     before,
		BeforeKeys: beforeKeys,
		After:      after,
		AfterKeys:  afterKeys,
		IPAddress:  auditcontext.IPAddressFromContext(ctx),
		UserAgent:  auditcontext.UserAgentFromContext(ctx),
	}
	if req.OccurredAt != nil {
		event.OccurredAt = *req.OccurredAt
	}

	entry, err := s.auditSvc.Record(ctx, event)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if entry == nil {
		// Best-effort write policy dropped the row. Nothing was created.
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": entry})
}

// decodeStatePayload decodes a before/after object and records its key order,
// which the map representation loses.
func decodeStatePayload(raw json.RawMessage) (map[string]any, []string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil, nil
	}
	var state map[string]any
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, nil, err
	}
	keys, err := objectKeyOrder(raw)
	if err != nil {
		return nil, nil, err
	}
	return state, keys, nil
}

func objectKeyOrder(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		keys = append(keys, key)
		if err := skipValue(dec); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '{' && delim != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if delim, ok := tok.(json.Delim); ok {
			switch delim {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	orgID, ok := s.orgIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	startAt, err := parseDateParam(c, "start_date", false)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	endAt, err := parseDateParam(c, "end_date", true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filter := auditdomain.ListFilter{
		OrgID:      orgID,
		Search:     strings.TrimSpace(c.Query("search")),
		Action:     strings.TrimSpace(c.Query("action")),
		EntityType: strings.TrimSpace(c.Query("entity_type")),
		ActorID:    strings.TrimSpace(c.Query("user_id")),
		StartAt:    startAt,
		EndAt:      endAt,
		Page:       intQuery(c, "page", 1),
		Limit:      intQuery(c, "limit", 20),
	}

	result, err := s.auditSvc.Query(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) AuditStats(c *gin.Context) {
	orgID, ok := s.orgIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	stats, err := s.auditSvc.Stats(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (s *Server) ExportAuditCSV(c *gin.Context) {
	orgID, ok := s.orgIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	startAt, err := parseDateParam(c, "start_date", false)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	endAt, err := parseDateParam(c, "end_date", true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// The export itself is an auditable action. Recording it first keeps the
	// trail complete even if the download is cut off mid-stream.
	ctx := c.Request.Context()
	actorID, actorName, actorEmail := auditcontext.ActorFromContext(ctx)
	_, err = s.auditSvc.Record(ctx, auditdomain.Event{
		OrgID:      orgID,
		ActorID:    actorID,
		ActorName:  actorName,
		ActorEmail: actorEmail,
		Action:     auditdomain.ActionExportCSV,
		EntityType: "AuditLog",
		EntityName: "audit log export",
		IPAddress:  auditcontext.IPAddressFromContext(ctx),
		UserAgent:  auditcontext.UserAgentFromContext(ctx),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("audit-log-%s.csv", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	if err := s.auditSvc.ExportCSV(ctx, orgID, startAt, endAt, c.Writer); err != nil {
		// Headers are already written; all we can do is log and cut the stream.
		_ = c.Error(err)
	}
}

// parseDateParam accepts a date (2006-01-02) or an RFC 3339 timestamp. Bare
// end dates are pushed to the last instant of that day so the bound stays
// inclusive.
func parseDateParam(c *gin.Context, name string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, newValidationError(name, "invalid_date", "expected YYYY-MM-DD or RFC 3339")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
