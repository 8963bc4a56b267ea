package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/stridehq/stride/internal/alert/domain"
	alertrepository "github.com/stridehq/stride/internal/alert/repository"
	auditdomain "github.com/stridehq/stride/internal/audit/domain"
	"github.com/stridehq/stride/internal/clock"
	memberdomain "github.com/stridehq/stride/internal/member/domain"
	memberrepository "github.com/stridehq/stride/internal/member/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupDispatchTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&alertdomain.AlertRule{},
		&alertdomain.DeliveryAttempt{},
		&alertdomain.Notification{},
		&memberdomain.Member{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestDispatcher(t *testing.T, db *gorm.DB, mailer Mailer) *Dispatcher {
	t.Helper()
	nodeCounter++
	node, err := snowflake.NewNode(nodeCounter % 1024)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	if mailer == nil {
		mailer = noopMailer{}
	}
	return &Dispatcher{
		db:         db,
		log:        zap.NewNop(),
		genID:      node,
		clock:      clock.SystemClock{},
		repo:       alertrepository.Provide(),
		members:    memberrepository.Provide(),
		mailer:     mailer,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		cfg:        DefaultConfig(),
	}
}

var nodeCounter int64

func insertMember(t *testing.T, db *gorm.DB, orgID snowflake.ID, userID, role, email string) {
	t.Helper()
	nodeCounter++
	member := &memberdomain.Member{
		ID:        snowflake.ParseInt64(nodeCounter + 9000),
		OrgID:     orgID,
		UserID:    userID,
		Name:      "User " + userID,
		Email:     email,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(member).Error; err != nil {
		t.Fatalf("insert member: %v", err)
	}
}

func testRule(orgID snowflake.ID, mutate func(*alertdomain.AlertRule)) *alertdomain.AlertRule {
	nodeCounter++
	rule := &alertdomain.AlertRule{
		ID:              snowflake.ParseInt64(nodeCounter + 5000),
		OrgID:           orgID,
		Name:            "rock watch",
		TriggerActions:  alertdomain.EncodeStrings([]string{"DELETE"}),
		TriggerEntities: alertdomain.EncodeStrings([]string{"Rock"}),
		NotifyRoles:     alertdomain.EncodeStrings([]string{"ADMIN"}),
		NotifyUserIDs:   alertdomain.EncodeStrings(nil),
		IsActive:        true,
	}
	if mutate != nil {
		mutate(rule)
	}
	return rule
}

func testRecord(orgID snowflake.ID) *auditdomain.AuditLog {
	nodeCounter++
	return &auditdomain.AuditLog{
		ID:         snowflake.ParseInt64(nodeCounter + 7000),
		OrgID:      orgID,
		ActorName:  "Ana",
		Action:     "DELETE",
		EntityType: "Rock",
		EntityID:   "rock-1",
		EntityName: "Q3 Launch",
		OccurredAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		CreatedAt:  time.Now().UTC(),
	}
}

func TestDispatchWebhookSignedAndSent(t *testing.T) {
	db := setupDispatchTestDB(t)
	orgID := snowflake.ParseInt64(201)

	var gotBody []byte
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := newTestDispatcher(t, db, nil)
	rule := testRule(orgID, func(r *alertdomain.AlertRule) {
		r.ChannelWebhook = true
		r.WebhookURL = server.URL
		r.WebhookSecret = "whsec_test"
	})
	record := testRecord(orgID)

	attempts := d.Dispatch(context.Background(), rule, record)
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	if attempts[0].Status != alertdomain.StatusSent {
		t.Fatalf("expected SENT, got %s (%s)", attempts[0].Status, attempts[0].Error)
	}
	if gotSignature != Sign(gotBody, "whsec_test") {
		t.Fatalf("signature mismatch: %q", gotSignature)
	}

	var payload map[string]any
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	for _, key := range []string{"ruleId", "ruleName", "auditRecordId", "action", "entityType", "entityId", "entityName", "actorName", "occurredAt"} {
		if _, ok := payload[key]; !ok {
			t.Fatalf("payload missing %q: %s", key, gotBody)
		}
	}
	if payload["action"] != "DELETE" || payload["entityName"] != "Q3 Launch" {
		t.Fatalf("unexpected payload %s", gotBody)
	}
}

func TestDispatchWebhookUnsignedWithoutSecret(t *testing.T) {
	db := setupDispatchTestDB(t)
	orgID := snowflake.ParseInt64(202)

	var gotSignature string
	var signaturePresent bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(SignatureHeader)
		_, signaturePresent = r.Header[SignatureHeader]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d := newTestDispatcher(t, db, nil)
	rule := testRule(orgID, func(r *alertdomain.AlertRule) {
		r.ChannelWebhook = true
		r.WebhookURL = server.URL
	})

	attempts := d.Dispatch(context.Background(), rule, testRecord(orgID))
	if attempts[0].Status != alertdomain.StatusSent {
		t.Fatalf("expected SENT, got %s", attempts[0].Status)
	}
	if signaturePresent || gotSignature != "" {
		t.Fatalf("expected no signature header, got %q", gotSignature)
	}
}

func TestDispatchWebhookFailureRecorded(t *testing.T) {
	db := setupDispatchTestDB(t)
	orgID := snowflake.ParseInt64(203)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	d := newTestDispatcher(t, db, nil)
	rule := testRule(orgID, func(r *alertdomain.AlertRule) {
		r.ChannelWebhook = true
		r.WebhookURL = server.URL
	})

	attempts := d.Dispatch(context.Background(), rule, testRecord(orgID))
	if attempts[0].Status != alertdomain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", attempts[0].Status)
	}

	var stored []alertdomain.DeliveryAttempt
	if err := db.Where("org_id = ? AND rule_id = ?", orgID, rule.ID).Find(&stored).Error; err != nil {
		t.Fatalf("load attempts: %v", err)
	}
	if len(stored) != 1 || stored[0].Status != alertdomain.StatusFailed || stored[0].Error == "" {
		t.Fatalf("expected persisted FAILED attempt with error, got %+v", stored)
	}
}

func TestDispatchInAppPerRecipient(t *testing.T) {
	db := setupDispatchTestDB(t)
	orgID := snowflake.ParseInt64(204)

	insertMember(t, db, orgID, "u1", "ADMIN", "u1@example.com")
	insertMember(t, db, orgID, "u2", "ADMIN", "u2@example.com")
	insertMember(t, db, orgID, "u3", "MEMBER", "u3@example.com")
	// u2 is also named explicitly: the union must deduplicate.
	d := newTestDispatcher(t, db, nil)
	rule := testRule(orgID, func(r *alertdomain.AlertRule) {
		r.ChannelInApp = true
		r.NotifyUserIDs = alertdomain.EncodeStrings([]string{"u2", "u3"})
	})

	attempts := d.Dispatch(context.Background(), rule, testRecord(orgID))
	if attempts[0].Status != alertdomain.StatusSent {
		t.Fatalf("expected SENT, got %s (%s)", attempts[0].Status, attempts[0].Error)
	}

	var notifications []alertdomain.Notification
	if err := db.Where("org_id = ?", orgID).Find(&notifications).Error; err != nil {
		t.Fatalf("load notifications: %v", err)
	}
	if len(notifications) != 3 {
		t.Fatalf("expected 3 notifications (u1, u2, u3), got %d", len(notifications))
	}
	seen := map[string]int{}
	for _, n := range notifications {
		seen[n.UserID]++
	}
	if seen["u2"] != 1 {
		t.Fatalf("expected u2 deduplicated to 1 notification, got %d", seen["u2"])
	}
}

func TestDispatchNoChannelsIsNoop(t *testing.T) {
	db := setupDispatchTestDB(t)
	orgID := snowflake.ParseInt64(205)

	d := newTestDispatcher(t, db, nil)
	attempts := d.Dispatch(context.Background(), testRule(orgID, nil), testRecord(orgID))
	if len(attempts) != 0 {
		t.Fatalf("expected no attempts, got %d", len(attempts))
	}
}

type recordingMailer struct {
	sent []Message
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func TestDispatchEmailPerRecipient(t *testing.T) {
	db := setupDispatchTestDB(t)
	orgID := snowflake.ParseInt64(206)

	insertMember(t, db, orgID, "u1", "ADMIN", "u1@example.com")
	insertMember(t, db, orgID, "u2", "ADMIN", "")

	mailer := &recordingMailer{}
	d := newTestDispatcher(t, db, mailer)
	rule := testRule(orgID, func(r *alertdomain.AlertRule) {
		r.ChannelEmail = true
	})

	attempts := d.Dispatch(context.Background(), rule, testRecord(orgID))
	if attempts[0].Status != alertdomain.StatusSent {
		t.Fatalf("expected SENT, got %s (%s)", attempts[0].Status, attempts[0].Error)
	}
	// u2 has no email address and is skipped, not failed.
	if len(mailer.sent) != 1 || mailer.sent[0].To != "u1@example.com" {
		t.Fatalf("expected one message to u1, got %+v", mailer.sent)
	}
}

func TestDispatchEmailTransportFailure(t *testing.T) {
	db := setupDispatchTestDB(t)
	orgID := snowflake.ParseInt64(207)

	insertMember(t, db, orgID, "u1", "ADMIN", "u1@example.com")

	mailer := &recordingMailer{err: fmt.Errorf("relay unreachable")}
	d := newTestDispatcher(t, db, mailer)
	rule := testRule(orgID, func(r *alertdomain.AlertRule) {
		r.ChannelEmail = true
	})

	attempts := d.Dispatch(context.Background(), rule, testRecord(orgID))
	if attempts[0].Status != alertdomain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", attempts[0].Status)
	}
}

func TestWorkerDeliversAsync(t *testing.T) {
	db := setupDispatchTestDB(t)
	orgID := snowflake.ParseInt64(208)

	insertMember(t, db, orgID, "u1", "ADMIN", "u1@example.com")

	d := newTestDispatcher(t, db, nil)
	worker := NewWorker(d, zap.NewNop())
	worker.Start()
	defer worker.Stop()

	rule := testRule(orgID, func(r *alertdomain.AlertRule) {
		r.ChannelInApp = true
	})
	if !worker.Enqueue(Job{Rule: rule, Record: testRecord(orgID)}) {
		t.Fatalf("enqueue rejected")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var count int64
		if err := db.Model(&alertdomain.Notification{}).Where("org_id = ?", orgID).Count(&count).Error; err != nil {
			t.Fatalf("count notifications: %v", err)
		}
		if count == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("notification was not delivered asynchronously")
}
