// Package dispatch fans a firing alert rule out across its configured
// delivery channels and records one DeliveryAttempt per channel.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/stridehq/stride/internal/alert/domain"
	auditdomain "github.com/stridehq/stride/internal/audit/domain"
	"github.com/stridehq/stride/internal/clock"
	"github.com/stridehq/stride/internal/config"
	memberdomain "github.com/stridehq/stride/internal/member/domain"
	"github.com/stridehq/stride/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    alertdomain.Repository
	Members memberdomain.Repository
	Cfg     config.Config
	Mailer  Mailer           `optional:"true"`
	Metrics *metrics.Alerting `optional:"true"`
	Config  Config           `optional:"true"`
}

// Dispatcher delivers one approved firing across the rule's channels. It
// never propagates delivery errors to the audit path; failures become FAILED
// DeliveryAttempt rows plus log entries.
type Dispatcher struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       alertdomain.Repository
	members    memberdomain.Repository
	mailer     Mailer
	httpClient *http.Client
	metrics    *metrics.Alerting
	cfg        Config
	emailFrom  string
}

// NewDispatcher constructs the dispatcher.
func NewDispatcher(p Params) *Dispatcher {
	cfg := p.Config.withDefaults()
	if p.Cfg.DispatchTimeout > 0 {
		cfg.DeliverTimeout = p.Cfg.DispatchTimeout
	}
	if p.Cfg.DispatchQueueSize > 0 {
		cfg.QueueSize = p.Cfg.DispatchQueueSize
	}
	mailer := p.Mailer
	if mailer == nil {
		if p.Cfg.SMTPAddr != "" {
			mailer = &SMTPMailer{Addr: p.Cfg.SMTPAddr, From: p.Cfg.SMTPFrom}
		} else {
			mailer = noopMailer{}
		}
	}
	return &Dispatcher{
		db:         p.DB,
		log:        p.Log.Named("alert.dispatch"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		members:    p.Members,
		mailer:     mailer,
		httpClient: &http.Client{Timeout: cfg.DeliverTimeout},
		metrics:    p.Metrics,
		cfg:        cfg,
		emailFrom:  p.Cfg.SMTPFrom,
	}
}

// Dispatch delivers one firing. Called only after cooldown approval. A rule
// with no channels enabled is a valid no-op firing.
func (d *Dispatcher) Dispatch(ctx context.Context, rule *alertdomain.AlertRule, record *auditdomain.AuditLog) []*alertdomain.DeliveryAttempt {
	attempts := make([]*alertdomain.DeliveryAttempt, 0, 3)

	if rule.ChannelInApp {
		attempts = append(attempts, d.deliver(ctx, rule, record, alertdomain.ChannelInApp, d.deliverInApp))
	}
	if rule.ChannelEmail {
		attempts = append(attempts, d.deliver(ctx, rule, record, alertdomain.ChannelEmail, d.deliverEmail))
	}
	if rule.ChannelWebhook {
		attempts = append(attempts, d.deliver(ctx, rule, record, alertdomain.ChannelWebhook, d.deliverWebhook))
	}
	return attempts
}

type deliverFunc func(ctx context.Context, rule *alertdomain.AlertRule, record *auditdomain.AuditLog) error

func (d *Dispatcher) deliver(ctx context.Context, rule *alertdomain.AlertRule, record *auditdomain.AuditLog, channel string, fn deliverFunc) *alertdomain.DeliveryAttempt {
	attempt := &alertdomain.DeliveryAttempt{
		ID:          d.genID.Generate(),
		OrgID:       rule.OrgID,
		RuleID:      rule.ID,
		AuditLogID:  record.ID,
		Channel:     channel,
		Status:      alertdomain.StatusPending,
		AttemptedAt: d.clock.Now(),
	}

	deliverCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliverTimeout)
	defer cancel()

	if err := fn(deliverCtx, rule, record); err != nil {
		attempt.Status = alertdomain.StatusFailed
		attempt.Error = err.Error()
		d.log.Warn("delivery failed",
			zap.String("channel", channel),
			zap.String("rule_id", rule.ID.String()),
			zap.String("audit_log_id", record.ID.String()),
			zap.Error(err),
		)
	} else {
		attempt.Status = alertdomain.StatusSent
	}
	d.metrics.ObserveDelivery(channel, attempt.Status)

	if err := d.repo.InsertAttempt(ctx, d.db, attempt); err != nil {
		d.log.Error("failed to record delivery attempt",
			zap.String("channel", channel),
			zap.String("rule_id", rule.ID.String()),
			zap.Error(err),
		)
	}
	return attempt
}

// resolveRecipients unions role-based and explicit recipients, deduplicated
// by user id and scoped to the rule's org.
func (d *Dispatcher) resolveRecipients(ctx context.Context, rule *alertdomain.AlertRule) ([]*memberdomain.Member, error) {
	byRole, err := d.members.ListByRoles(ctx, d.db, rule.OrgID, rule.NotifyRoleSet())
	if err != nil {
		return nil, err
	}
	byID, err := d.members.ListByUserIDs(ctx, d.db, rule.OrgID, rule.NotifyUserIDSet())
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(byRole)+len(byID))
	recipients := make([]*memberdomain.Member, 0, len(byRole)+len(byID))
	for _, member := range append(byRole, byID...) {
		if member == nil || member.UserID == "" {
			continue
		}
		if _, dup := seen[member.UserID]; dup {
			continue
		}
		seen[member.UserID] = struct{}{}
		recipients = append(recipients, member)
	}
	return recipients, nil
}

func (d *Dispatcher) deliverInApp(ctx context.Context, rule *alertdomain.AlertRule, record *auditdomain.AuditLog) error {
	recipients, err := d.resolveRecipients(ctx, rule)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}

	title, body := buildNotificationText(rule, record)
	var failures []error
	for _, recipient := range recipients {
		notification := &alertdomain.Notification{
			ID:         d.genID.Generate(),
			OrgID:      rule.OrgID,
			UserID:     recipient.UserID,
			RuleID:     rule.ID,
			AuditLogID: record.ID,
			Title:      title,
			Body:       body,
			CreatedAt:  d.clock.Now(),
		}
		// One recipient failing must not block the rest.
		if err := d.repo.InsertNotification(ctx, d.db, notification); err != nil {
			failures = append(failures, fmt.Errorf("user %s: %w", recipient.UserID, err))
		}
	}
	return errors.Join(failures...)
}

func (d *Dispatcher) deliverEmail(ctx context.Context, rule *alertdomain.AlertRule, record *auditdomain.AuditLog) error {
	recipients, err := d.resolveRecipients(ctx, rule)
	if err != nil {
		return err
	}

	title, body := buildNotificationText(rule, record)
	var failures []error
	for _, recipient := range recipients {
		if strings.TrimSpace(recipient.Email) == "" {
			continue
		}
		msg := Message{To: recipient.Email, Subject: title, Body: body}
		if err := d.mailer.Send(ctx, msg); err != nil {
			failures = append(failures, fmt.Errorf("user %s: %w", recipient.UserID, err))
		}
	}
	return errors.Join(failures...)
}

func buildNotificationText(rule *alertdomain.AlertRule, record *auditdomain.AuditLog) (string, string) {
	title := fmt.Sprintf("[%s] %s on %s", rule.Name, record.Action, record.EntityType)
	body := fmt.Sprintf(
		"%s performed %s on %s %q at %s",
		record.ActorName,
		record.Action,
		record.EntityType,
		record.EntityName,
		record.OccurredAt.UTC().Format(time.RFC3339),
	)
	return title, body
}
