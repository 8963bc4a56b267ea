// Package seed bootstraps local development data.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/stridehq/stride/internal/alert/domain"
	memberdomain "github.com/stridehq/stride/internal/member/domain"
	"gorm.io/gorm"
)

const (
	demoOrgID      = int64(1)
	demoAdminID    = "admin"
	demoAdminName  = "Stride Admin"
	demoAdminEmail = "admin@stride.local"
)

// EnsureDemoOrg seeds a demo organization member and one alert rule so a
// fresh development database has something to fire against. Production
// deployments never call this.
func EnsureDemoOrg(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureDemoAdmin(tx, node); err != nil {
			return err
		}
		return ensureDemoRule(tx, node)
	})
}

func ensureDemoAdmin(tx *gorm.DB, node *snowflake.Node) error {
	var count int64
	err := tx.Model(&memberdomain.Member{}).
		Where("org_id = ? AND user_id = ?", demoOrgID, demoAdminID).
		Count(&count).Error
	if err != nil || count > 0 {
		return err
	}
	return tx.Create(&memberdomain.Member{
		ID:        node.Generate(),
		OrgID:     snowflake.ParseInt64(demoOrgID),
		UserID:    demoAdminID,
		Name:      demoAdminName,
		Email:     demoAdminEmail,
		Role:      "ADMIN",
		CreatedAt: time.Now().UTC(),
	}).Error
}

func ensureDemoRule(tx *gorm.DB, node *snowflake.Node) error {
	var count int64
	err := tx.Model(&alertdomain.AlertRule{}).
		Where("org_id = ?", demoOrgID).
		Count(&count).Error
	if err != nil || count > 0 {
		return err
	}
	now := time.Now().UTC()
	return tx.Create(&alertdomain.AlertRule{
		ID:              node.Generate(),
		OrgID:           snowflake.ParseInt64(demoOrgID),
		Name:            "Deletions",
		Description:     "Notify admins when anything is deleted",
		TriggerActions:  alertdomain.EncodeStrings([]string{"DELETE"}),
		TriggerEntities: alertdomain.EncodeStrings([]string{alertdomain.EntityWildcard}),
		NotifyRoles:     alertdomain.EncodeStrings([]string{"ADMIN"}),
		NotifyUserIDs:   alertdomain.EncodeStrings(nil),
		ChannelInApp:    true,
		CooldownMinutes: 15,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}).Error
}
