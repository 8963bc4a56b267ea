package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	memberdomain "github.com/stridehq/stride/internal/member/domain"
	"gorm.io/gorm"
)

type repositoryImpl struct{}

// Provide constructs the gorm-backed member repository.
func Provide() memberdomain.Repository {
	return &repositoryImpl{}
}

func (r *repositoryImpl) ListByRoles(ctx context.Context, db *gorm.DB, orgID snowflake.ID, roles []string) ([]*memberdomain.Member, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	var members []*memberdomain.Member
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Where("role IN ?", roles).
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *repositoryImpl) ListByUserIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, userIDs []string) ([]*memberdomain.Member, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var members []*memberdomain.Member
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Where("user_id IN ?", userIDs).
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}
