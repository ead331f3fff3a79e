package dao

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"opensign/apps/search-service/internal/model"
	"opensign/pkg/database"
	"opensign/pkg/logger"
)

// profileDAO 个性化档案数据访问对象
type profileDAO struct {
	db     *database.PostgreSQL
	logger logger.Logger
}

// NewProfileDAO 创建个性化档案DAO实例
func NewProfileDAO(db *database.PostgreSQL, log logger.Logger) ProfileDAO {
	return &profileDAO{
		db:     db,
		logger: log,
	}
}

// GetProfile 读取档案，不存在时返回默认档案（查无档案不是错误）
func (d *profileDAO) GetProfile(ctx context.Context, userID, organizationID string) (*model.SearchPersonalizationProfile, error) {
	var profile model.SearchPersonalizationProfile
	db := d.db.GetDB()

	err := db.WithContext(ctx).
		Where("user_id = ? AND organization_id = ?", userID, organizationID).
		First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.DefaultProfile(userID, organizationID), nil
		}

		d.logger.Error(ctx, "Failed to get personalization profile",
			logger.F("user_id", userID),
			logger.F("organization_id", organizationID),
			logger.F("error", err.Error()))
		return nil, fmt.Errorf("failed to get personalization profile: %v", err)
	}

	return &profile, nil
}

// SaveProfile 创建或更新档案
func (d *profileDAO) SaveProfile(ctx context.Context, profile *model.SearchPersonalizationProfile) error {
	if profile == nil || profile.UserID == "" || profile.OrganizationID == "" {
		return fmt.Errorf("invalid personalization profile")
	}

	db := d.db.GetDB()

	// 新档案先查主键，避免重复插入
	if profile.ID == 0 {
		var existing model.SearchPersonalizationProfile
		err := db.WithContext(ctx).
			Where("user_id = ? AND organization_id = ?", profile.UserID, profile.OrganizationID).
			First(&existing).Error
		if err == nil {
			profile.ID = existing.ID
			profile.CreatedAt = existing.CreatedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check existing profile: %v", err)
		}
	}

	if err := db.WithContext(ctx).Save(profile).Error; err != nil {
		d.logger.Error(ctx, "Failed to save personalization profile",
			logger.F("user_id", profile.UserID),
			logger.F("organization_id", profile.OrganizationID),
			logger.F("error", err.Error()))
		return fmt.Errorf("failed to save personalization profile: %v", err)
	}

	d.logger.Debug(ctx, "Personalization profile saved",
		logger.F("user_id", profile.UserID),
		logger.F("organization_id", profile.OrganizationID))
	return nil
}
