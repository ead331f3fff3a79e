package dao

import (
	"context"
	"errors"

	"opensign/apps/search-service/internal/model"
)

// ============ 错误定义 ============

var (
	// ErrDocumentNotFound 文档不存在
	ErrDocumentNotFound = errors.New("document not found")
)

// ============ 搜索引擎数据类型 ============

// BulkItemError 批量索引中单条失败的明细，批量操作不因个别失败而中止
type BulkItemError struct {
	DocumentID string `json:"document_id"`
	Reason     string `json:"reason"`
}

// RawSearchResult 搜索引擎返回的原始结果
//
// Aggregations 保持引擎原始桶结构，由分面引擎后处理。
type RawSearchResult struct {
	Documents    []*model.SearchDocument
	Total        int64
	Aggregations map[string]interface{}
}

// ClusterHealth 集群健康状态
type ClusterHealth struct {
	Status    string `json:"status"` // green/yellow/red
	Reachable bool   `json:"reachable"`
	Detail    string `json:"detail,omitempty"`
}

// IndexStats 索引统计
type IndexStats struct {
	DocumentCount int64 `json:"document_count"`
	SizeBytes     int64 `json:"size_bytes"`
}

// ============ 搜索引擎DAO接口 ============

// SearchDAO 搜索引擎数据访问接口，唯一允许直接访问引擎协议的组件
type SearchDAO interface {
	// 索引生命周期
	EnsureIndex(ctx context.Context, indexName string) error
	IndexExists(ctx context.Context, indexName string) (bool, error)
	DeleteIndex(ctx context.Context, indexName string) error

	// 文档操作
	IndexDocument(ctx context.Context, doc *model.SearchDocument) error
	BulkIndexDocuments(ctx context.Context, docs []*model.SearchDocument) ([]BulkItemError, error)
	DeleteDocument(ctx context.Context, id, entityType string) error
	GetDocument(ctx context.Context, id string) (*model.SearchDocument, error)
	DeleteByOrganization(ctx context.Context, organizationID string) error

	// 搜索执行
	Search(ctx context.Context, query *model.SearchQuery, organizationID, userID string, facets []model.FacetConfig) (*RawSearchResult, error)
	SuggestCompletions(ctx context.Context, prefix, organizationID string, limit int) ([]model.SearchSuggestion, error)

	// 只读状态，对瞬时不可用只返回降级状态、不抛错
	GetClusterHealth(ctx context.Context) *ClusterHealth
	GetIndexStats(ctx context.Context, indexName string) (*IndexStats, error)
	Ping(ctx context.Context) error
}

// ============ 分析存储DAO接口 ============

// AnalyticsDAO 分析事件持久化接口
type AnalyticsDAO interface {
	SaveEvents(ctx context.Context, events []*model.SearchAnalyticsEvent) error
	SaveClickEvent(ctx context.Context, event *model.SearchClickEvent) error
	QueryEvents(ctx context.Context, organizationID string, timeRange model.TimeRange) ([]*model.SearchAnalyticsEvent, error)
	QueryClickEvents(ctx context.Context, organizationID string, timeRange model.TimeRange) ([]*model.SearchClickEvent, error)
	Ping(ctx context.Context) error
}

// ============ 个性化档案DAO接口 ============

// ProfileDAO 个性化档案持久化接口，档案不存在返回默认档案而非错误
type ProfileDAO interface {
	GetProfile(ctx context.Context, userID, organizationID string) (*model.SearchPersonalizationProfile, error)
	SaveProfile(ctx context.Context, profile *model.SearchPersonalizationProfile) error
}
