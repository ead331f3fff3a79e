package dao

import (
	"context"
	"fmt"

	"opensign/apps/search-service/internal/model"
	"opensign/pkg/database"
	"opensign/pkg/logger"
)

// analyticsDAO 搜索分析事件数据访问对象
type analyticsDAO struct {
	db     *database.PostgreSQL
	logger logger.Logger
}

// NewAnalyticsDAO 创建分析DAO实例
func NewAnalyticsDAO(db *database.PostgreSQL, log logger.Logger) AnalyticsDAO {
	return &analyticsDAO{
		db:     db,
		logger: log,
	}
}

// ============ 事件写入 ============

// SaveEvents 批量落盘分析事件
func (d *analyticsDAO) SaveEvents(ctx context.Context, events []*model.SearchAnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}

	db := d.db.GetDB()
	if err := db.WithContext(ctx).Create(&events).Error; err != nil {
		d.logger.Error(ctx, "Failed to save analytics events",
			logger.F("count", len(events)),
			logger.F("error", err.Error()))
		return fmt.Errorf("failed to save analytics events: %v", err)
	}

	d.logger.Debug(ctx, "Analytics events saved",
		logger.F("count", len(events)))
	return nil
}

// SaveClickEvent 写入独立点击事件
func (d *analyticsDAO) SaveClickEvent(ctx context.Context, event *model.SearchClickEvent) error {
	db := d.db.GetDB()
	if err := db.WithContext(ctx).Create(event).Error; err != nil {
		d.logger.Error(ctx, "Failed to save click event",
			logger.F("search_id", event.SearchID),
			logger.F("document_id", event.DocumentID),
			logger.F("error", err.Error()))
		return fmt.Errorf("failed to save click event: %v", err)
	}

	return nil
}

// ============ 事件查询 ============

// QueryEvents 按组织和时间范围查询已落盘事件
func (d *analyticsDAO) QueryEvents(ctx context.Context, organizationID string, timeRange model.TimeRange) ([]*model.SearchAnalyticsEvent, error) {
	var events []*model.SearchAnalyticsEvent
	db := d.db.GetDB()

	query := db.WithContext(ctx).Where("organization_id = ?", organizationID)
	if !timeRange.Start.IsZero() {
		query = query.Where("created_at >= ?", timeRange.Start)
	}
	if !timeRange.End.IsZero() {
		query = query.Where("created_at <= ?", timeRange.End)
	}

	if err := query.Order("created_at DESC").Find(&events).Error; err != nil {
		d.logger.Error(ctx, "Failed to query analytics events",
			logger.F("organization_id", organizationID),
			logger.F("error", err.Error()))
		return nil, fmt.Errorf("failed to query analytics events: %v", err)
	}

	return events, nil
}

// QueryClickEvents 按组织和时间范围查询点击事件
func (d *analyticsDAO) QueryClickEvents(ctx context.Context, organizationID string, timeRange model.TimeRange) ([]*model.SearchClickEvent, error) {
	var events []*model.SearchClickEvent
	db := d.db.GetDB()

	query := db.WithContext(ctx).Where("organization_id = ?", organizationID)
	if !timeRange.Start.IsZero() {
		query = query.Where("created_at >= ?", timeRange.Start)
	}
	if !timeRange.End.IsZero() {
		query = query.Where("created_at <= ?", timeRange.End)
	}

	if err := query.Order("created_at DESC").Find(&events).Error; err != nil {
		d.logger.Error(ctx, "Failed to query click events",
			logger.F("organization_id", organizationID),
			logger.F("error", err.Error()))
		return nil, fmt.Errorf("failed to query click events: %v", err)
	}

	return events, nil
}

// Ping 数据库连通性检查
func (d *analyticsDAO) Ping(ctx context.Context) error {
	return d.db.Health(ctx)
}
