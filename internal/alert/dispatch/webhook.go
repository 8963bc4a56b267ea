package dispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	alertdomain "github.com/stridehq/stride/internal/alert/domain"
	auditdomain "github.com/stridehq/stride/internal/audit/domain"
	"github.com/stridehq/stride/internal/observability/logger"
	"go.uber.org/zap"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body,
// computed with the rule's webhook secret. Absent when no secret is set.
const SignatureHeader = "X-Stride-Signature"

type webhookPayload struct {
	RuleID        string `json:"ruleId"`
	RuleName      string `json:"ruleName"`
	AuditRecordID string `json:"auditRecordId"`
	Action        string `json:"action"`
	EntityType    string `json:"entityType"`
	EntityID      string `json:"entityId"`
	EntityName    string `json:"entityName"`
	ActorName     string `json:"actorName"`
	OccurredAt    string `json:"occurredAt"`
}

func buildWebhookBody(rule *alertdomain.AlertRule, record *auditdomain.AuditLog) ([]byte, error) {
	return json.Marshal(webhookPayload{
		RuleID:        rule.ID.String(),
		RuleName:      rule.Name,
		AuditRecordID: record.ID.String(),
		Action:        record.Action,
		EntityType:    record.EntityType,
		EntityID:      record.EntityID,
		EntityName:    record.EntityName,
		ActorName:     record.ActorName,
		OccurredAt:    record.OccurredAt.UTC().Format(time.RFC3339),
	})
}

// Sign computes the signature value for a body and secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// deliverWebhook makes the single delivery attempt for one firing. A non-2xx
// response or transport error marks the attempt failed; nothing retries here.
func (d *Dispatcher) deliverWebhook(ctx context.Context, rule *alertdomain.AlertRule, record *auditdomain.AuditLog) error {
	body, err := buildWebhookBody(rule, record)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rule.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if rule.WebhookSecret != "" {
		req.Header.Set(SignatureHeader, Sign(body, rule.WebhookSecret))
	}
	d.log.Debug("posting webhook",
		zap.String("rule_id", rule.ID.String()),
		zap.String("url", rule.WebhookURL),
		zap.String("secret", logger.MaskSecret(rule.WebhookSecret)),
	)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
