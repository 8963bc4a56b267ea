package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/stridehq/stride/internal/alert/domain"
	alertrepository "github.com/stridehq/stride/internal/alert/repository"
	"github.com/stridehq/stride/internal/clock"
	"github.com/stridehq/stride/internal/config"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testNode int64

func setupService(t *testing.T) (alertdomain.Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&alertdomain.AlertRule{},
		&alertdomain.DeliveryAttempt{},
		&alertdomain.Notification{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	testNode++
	node, err := snowflake.NewNode(testNode % 1024)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.SystemClock{},
		Repo:  alertrepository.Provide(),
		Cfg: config.Config{
			AllowedActions:     []string{"CREATE", "UPDATE", "DELETE"},
			AllowedEntityTypes: []string{"Rock", "Task"},
			RuleCacheTTL:       time.Minute,
		},
	})
	return svc, db
}

func validInput() alertdomain.RuleInput {
	return alertdomain.RuleInput{
		Name:            "rock deletions",
		TriggerActions:  []string{"DELETE"},
		TriggerEntities: []string{"Rock"},
		NotifyRoles:     []string{"ADMIN"},
		ChannelInApp:    true,
		CooldownMinutes: 30,
		IsActive:        true,
	}
}

func TestCreateRuleValidation(t *testing.T) {
	svc, _ := setupService(t)
	orgID := snowflake.ParseInt64(401)

	cases := []struct {
		name   string
		mutate func(*alertdomain.RuleInput)
		want   error
	}{
		{"blank name", func(in *alertdomain.RuleInput) { in.Name = "  " }, alertdomain.ErrInvalidName},
		{"no actions", func(in *alertdomain.RuleInput) { in.TriggerActions = nil }, alertdomain.ErrEmptyTriggerActions},
		{"unknown action", func(in *alertdomain.RuleInput) { in.TriggerActions = []string{"PURGE"} }, alertdomain.ErrUnknownAction},
		{"no entities", func(in *alertdomain.RuleInput) { in.TriggerEntities = []string{"", " "} }, alertdomain.ErrEmptyTriggerEntities},
		{"unknown entity", func(in *alertdomain.RuleInput) { in.TriggerEntities = []string{"Invoice"} }, alertdomain.ErrUnknownEntityType},
		{"negative cooldown", func(in *alertdomain.RuleInput) { in.CooldownMinutes = -1 }, alertdomain.ErrNegativeCooldown},
		{"webhook without url", func(in *alertdomain.RuleInput) {
			in.ChannelWebhook = true
		}, alertdomain.ErrMissingWebhookURL},
		{"webhook bad scheme", func(in *alertdomain.RuleInput) {
			in.ChannelWebhook = true
			in.WebhookURL = "ftp://hooks.example.com"
		}, alertdomain.ErrInvalidWebhookURL},
		{"webhook no host", func(in *alertdomain.RuleInput) {
			in.ChannelWebhook = true
			in.WebhookURL = "https://"
		}, alertdomain.ErrInvalidWebhookURL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.mutate(&input)
			if _, err := svc.CreateRule(context.Background(), orgID, input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := svc.CreateRule(context.Background(), 0, validInput()); !errors.Is(err, alertdomain.ErrInvalidOrganization) {
		t.Fatalf("expected ErrInvalidOrganization, got %v", err)
	}
}

func TestCreateRuleAcceptsWildcardEntity(t *testing.T) {
	svc, _ := setupService(t)
	orgID := snowflake.ParseInt64(402)

	input := validInput()
	input.TriggerEntities = []string{alertdomain.EntityWildcard}
	rule, err := svc.CreateRule(context.Background(), orgID, input)
	if err != nil {
		t.Fatalf("wildcard entity must skip the allow-list: %v", err)
	}
	if !rule.MatchesEntity("Sprint") {
		t.Fatalf("wildcard rule must match any entity type")
	}
}

func TestCreateRuleNormalizesLists(t *testing.T) {
	svc, _ := setupService(t)
	orgID := snowflake.ParseInt64(403)

	input := validInput()
	input.TriggerActions = []string{" DELETE ", "DELETE", "UPDATE"}
	input.NotifyUserIDs = []string{"u1", "", "u1", " u2 "}
	rule, err := svc.CreateRule(context.Background(), orgID, input)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	actions := rule.TriggerActionSet()
	if len(actions) != 2 || actions[0] != "DELETE" || actions[1] != "UPDATE" {
		t.Fatalf("expected deduplicated trimmed actions, got %v", actions)
	}
	userIDs := rule.NotifyUserIDSet()
	if len(userIDs) != 2 || userIDs[0] != "u1" || userIDs[1] != "u2" {
		t.Fatalf("expected deduplicated trimmed user ids, got %v", userIDs)
	}
}

func TestUpdateRuleScopedToOrg(t *testing.T) {
	svc, _ := setupService(t)
	owner := snowflake.ParseInt64(404)
	other := snowflake.ParseInt64(405)

	rule, err := svc.CreateRule(context.Background(), owner, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	input := validInput()
	input.Name = "renamed"
	if _, err := svc.UpdateRule(context.Background(), other, rule.ID, input); !errors.Is(err, alertdomain.ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound for foreign org, got %v", err)
	}

	updated, err := svc.UpdateRule(context.Background(), owner, rule.ID, input)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "renamed" {
		t.Fatalf("expected renamed rule, got %q", updated.Name)
	}
}

func TestDeleteRuleScopedToOrg(t *testing.T) {
	svc, _ := setupService(t)
	owner := snowflake.ParseInt64(406)
	other := snowflake.ParseInt64(407)

	rule, err := svc.CreateRule(context.Background(), owner, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.DeleteRule(context.Background(), other, rule.ID); !errors.Is(err, alertdomain.ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound for foreign org, got %v", err)
	}
	if err := svc.DeleteRule(context.Background(), owner, rule.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetRule(context.Background(), owner, rule.ID); !errors.Is(err, alertdomain.ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound after delete, got %v", err)
	}
}

func TestActiveRulesCacheInvalidation(t *testing.T) {
	svc, _ := setupService(t)
	orgID := snowflake.ParseInt64(408)

	rule, err := svc.CreateRule(context.Background(), orgID, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	active, err := svc.ActiveRules(context.Background(), orgID)
	if err != nil {
		t.Fatalf("active rules: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active rule, got %d", len(active))
	}

	// Disabling the rule must bust the cache immediately, not after the TTL.
	input := validInput()
	input.IsActive = false
	if _, err := svc.UpdateRule(context.Background(), orgID, rule.ID, input); err != nil {
		t.Fatalf("update: %v", err)
	}
	active, err = svc.ActiveRules(context.Background(), orgID)
	if err != nil {
		t.Fatalf("active rules: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("disabled rule must stop matching, got %d active", len(active))
	}
}

func TestListDeliveriesRequiresOwnedRule(t *testing.T) {
	svc, db := setupService(t)
	owner := snowflake.ParseInt64(409)
	other := snowflake.ParseInt64(410)

	rule, err := svc.CreateRule(context.Background(), owner, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	attempt := &alertdomain.DeliveryAttempt{
		ID:          snowflake.ParseInt64(9409),
		OrgID:       owner,
		RuleID:      rule.ID,
		AuditLogID:  snowflake.ParseInt64(1),
		Channel:     alertdomain.ChannelInApp,
		Status:      alertdomain.StatusSent,
		AttemptedAt: time.Now().UTC(),
	}
	if err := db.Create(attempt).Error; err != nil {
		t.Fatalf("insert attempt: %v", err)
	}

	if _, err := svc.ListDeliveries(context.Background(), other, rule.ID, 10); !errors.Is(err, alertdomain.ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound for foreign org, got %v", err)
	}
	attempts, err := svc.ListDeliveries(context.Background(), owner, rule.ID, 10)
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
}

func TestNotificationsReadFlow(t *testing.T) {
	svc, db := setupService(t)
	orgID := snowflake.ParseInt64(411)

	notification := &alertdomain.Notification{
		ID:         snowflake.ParseInt64(9411),
		OrgID:      orgID,
		UserID:     "u1",
		RuleID:     snowflake.ParseInt64(1),
		AuditLogID: snowflake.ParseInt64(2),
		Title:      "rock deleted",
		Body:       "Ana deleted a rock",
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.Create(notification).Error; err != nil {
		t.Fatalf("insert notification: %v", err)
	}

	list, err := svc.ListNotifications(context.Background(), orgID, "u1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ReadAt != nil {
		t.Fatalf("expected 1 unread notification, got %+v", list)
	}

	// Another user must not be able to mark it read.
	if err := svc.MarkNotificationRead(context.Background(), orgID, notification.ID, "u2"); !errors.Is(err, alertdomain.ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound for wrong user, got %v", err)
	}
	if err := svc.MarkNotificationRead(context.Background(), orgID, notification.ID, "u1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	var stored alertdomain.Notification
	if err := db.First(&stored, "id = ?", notification.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.ReadAt == nil {
		t.Fatalf("expected read_at to be set")
	}
}
