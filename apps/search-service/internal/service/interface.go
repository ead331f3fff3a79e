package service

import (
	"context"
	"errors"
	"time"

	"opensign/apps/search-service/internal/dao"
	"opensign/apps/search-service/internal/model"
)

// ============ 错误定义 ============

var (
	// ErrCacheMiss 缓存未命中
	ErrCacheMiss = errors.New("cache miss")
)

// ============ 服务配置 ============

// ServiceConfig 搜索服务配置
//
// 功能开关控制各增强阶段是否参与流水线，关闭的阶段直接跳过，
// 打开但失败的阶段记录日志后降级，只有查询执行失败才使请求整体失败。
type ServiceConfig struct {
	// 基础配置
	DefaultPageSize int `json:"default_page_size"`
	MaxPageSize     int `json:"max_page_size"`
	SearchTimeout   int `json:"search_timeout_ms"`

	// 功能开关
	EnableIntentRecognition bool `json:"enable_intent_recognition"`
	EnableQueryExpansion    bool `json:"enable_query_expansion"`
	EnableSpellCorrection   bool `json:"enable_spell_correction"`
	EnablePersonalization   bool `json:"enable_personalization"`
	EnableSemanticRanking   bool `json:"enable_semantic_ranking"`
	EnableFacets            bool `json:"enable_facets"`
	EnableSuggestions       bool `json:"enable_suggestions"`
	EnableAnalytics         bool `json:"enable_analytics"`

	// 个性化权重
	ClickWeight        float64 `json:"click_weight"`         // 每次历史点击的加分
	MaxClickBoost      float64 `json:"max_click_boost"`      // 点击加分上限
	CollaboratorBonus  float64 `json:"collaborator_bonus"`   // 协作者文档加分
	RecentDocBonus     float64 `json:"recent_doc_bonus"`     // 近期访问文档加分
	PreferredTypeBonus float64 `json:"preferred_type_bonus"` // 偏好实体类型加分
	SemanticWeight     float64 `json:"semantic_weight"`      // 语义相似度混合权重
	RecencyWeight      float64 `json:"recency_weight"`       // 新近度混合权重
	UserWeightFactor   float64 `json:"user_weight_factor"`   // 个性化整体缩放因子

	// 阈值
	IntentConfidenceThreshold float64 `json:"intent_confidence_threshold"`
	MinSuggestionScore        float64 `json:"min_suggestion_score"`

	// 分析批量配置
	AnalyticsBatchSize     int           `json:"analytics_batch_size"`
	AnalyticsFlushInterval time.Duration `json:"analytics_flush_interval"`

	// 洞察阈值
	SlowResponseThresholdMs float64 `json:"slow_response_threshold_ms"`
	LowCTRThreshold         float64 `json:"low_ctr_threshold"`

	// 缓存配置
	CacheEnabled bool           `json:"cache_enabled"`
	CacheTTL     map[string]int `json:"cache_ttl"`

	// 事件配置
	EventEnabled bool `json:"event_enabled"`
}

// DefaultServiceConfig 创建默认配置
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		DefaultPageSize: model.DefaultPageSize,
		MaxPageSize:     model.MaxPageSize,
		SearchTimeout:   5000,

		EnableIntentRecognition: true,
		EnableQueryExpansion:    true,
		EnableSpellCorrection:   true,
		EnablePersonalization:   true,
		EnableSemanticRanking:   true,
		EnableFacets:            true,
		EnableSuggestions:       true,
		EnableAnalytics:         true,

		ClickWeight:        0.1,
		MaxClickBoost:      1.0,
		CollaboratorBonus:  0.3,
		RecentDocBonus:     0.5,
		PreferredTypeBonus: 0.2,
		SemanticWeight:     0.2,
		RecencyWeight:      0.1,
		UserWeightFactor:   1.0,

		IntentConfidenceThreshold: model.DefaultIntentConfidenceThreshold,
		MinSuggestionScore:        model.MinSuggestionScore,

		AnalyticsBatchSize:     model.DefaultAnalyticsBatchSize,
		AnalyticsFlushInterval: model.DefaultAnalyticsFlushInterval,

		SlowResponseThresholdMs: 500,
		LowCTRThreshold:         0.2,

		CacheEnabled: true,
		CacheTTL: map[string]int{
			"search_results": model.DefaultSearchResultTTL,
			"suggestions":    model.DefaultSuggestionsTTL,
			"hot_queries":    model.DefaultHotQueriesTTL,
			"profiles":       model.DefaultProfileTTL,
		},

		EventEnabled: true,
	}
}

// ============ 搜索服务接口 ============

// SearchContext 单次搜索的调用方身份
type SearchContext struct {
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
}

// HealthStatus 服务健康状态
type HealthStatus struct {
	Status     string            `json:"status"` // healthy/degraded/unhealthy
	Components map[string]string `json:"components"`
	IndexStats *dao.IndexStats   `json:"index_stats,omitempty"`
}

// SearchService 搜索服务接口
type SearchService interface {
	// ============ 搜索功能 ============

	// Search 执行完整的搜索流水线
	Search(ctx context.Context, query *model.SearchQuery, sc SearchContext) (*model.SearchResult, error)

	// GetSuggestions 获取输入联想建议
	GetSuggestions(ctx context.Context, prefix string, sc SearchContext, limit int) ([]model.SearchSuggestion, error)

	// GetFacetSuggestions 根据查询文本推荐可用分面
	GetFacetSuggestions(ctx context.Context, query string, entityTypes []string) []model.FacetSuggestion

	// ============ 索引管理 ============

	// IndexDocument 索引单个文档
	IndexDocument(ctx context.Context, doc *model.SearchDocument) error

	// BulkIndexDocuments 批量索引文档，返回逐条失败明细
	BulkIndexDocuments(ctx context.Context, docs []*model.SearchDocument) ([]dao.BulkItemError, error)

	// GetDocument 按ID获取已索引的文档
	GetDocument(ctx context.Context, id string) (*model.SearchDocument, error)

	// DeleteDocument 删除文档
	DeleteDocument(ctx context.Context, id, entityType string) error

	// RecreateIndex 删除并重建文档索引，用于映射变更
	RecreateIndex(ctx context.Context) error

	// ReindexOrganization 重建某组织的全部文档
	ReindexOrganization(ctx context.Context, organizationID string, docs []*model.SearchDocument) error

	// ============ 行为与分析 ============

	// TrackClick 记录搜索结果点击
	TrackClick(ctx context.Context, searchID, documentID string, position int, sc SearchContext) error

	// GetSearchMetrics 获取组织的聚合搜索指标
	GetSearchMetrics(ctx context.Context, organizationID string, timeRange model.TimeRange) (*model.SearchMetrics, error)

	// GetSearchInsights 获取规则引擎产出的洞察
	GetSearchInsights(ctx context.Context, organizationID string, timeRange model.TimeRange) ([]model.SearchInsight, error)

	// ============ 个性化 ============

	// GetPersonalizationProfile 获取用户档案
	GetPersonalizationProfile(ctx context.Context, userID, organizationID string) (*model.SearchPersonalizationProfile, error)

	// UpdatePersonalizationProfile 更新用户档案
	UpdatePersonalizationProfile(ctx context.Context, profile *model.SearchPersonalizationProfile) error

	// ============ 运维 ============

	// HealthCheck 健康检查，聚合各依赖组件状态
	HealthCheck(ctx context.Context) *HealthStatus

	// Shutdown 优雅关闭，刷出未提交的分析事件
	Shutdown(ctx context.Context) error
}

// ============ 流水线子服务接口 ============

// EnhancementService 查询增强流水线
//
// 各阶段只丰富查询、不收窄语义，任一阶段失败都返回增强前的查询。
type EnhancementService interface {
	// Enhance 按固定顺序执行意图识别、拼写纠正、同义词扩展、个性化默认值
	Enhance(ctx context.Context, query *model.SearchQuery, profile *model.SearchPersonalizationProfile) *model.SearchQuery

	// RecognizeIntent 识别查询意图
	RecognizeIntent(query string) *model.SearchIntent
}

// FacetService 分面引擎
type FacetService interface {
	// ChooseFacets 根据请求与实体类型选择分面配置
	ChooseFacets(query *model.SearchQuery) []model.FacetConfig

	// BuildFacets 将引擎原始聚合后处理为分面结果
	BuildFacets(aggregations map[string]interface{}, configs []model.FacetConfig, query *model.SearchQuery) []model.FacetResult

	// SuggestFacets 根据查询文本推荐分面
	SuggestFacets(query string, entityTypes []string) []model.FacetSuggestion
}

// RankingService 结果排序引擎
type RankingService interface {
	// Rank 对结果应用个性化与语义加权并稳定重排
	Rank(docs []*model.SearchDocument, query *model.SearchQuery, profile *model.SearchPersonalizationProfile, now time.Time) []*model.SearchDocument
}

// SuggestionService 建议引擎
type SuggestionService interface {
	// Complete 前缀补全建议
	Complete(ctx context.Context, prefix, organizationID string, profile *model.SearchPersonalizationProfile, limit int) ([]model.SearchSuggestion, error)

	// ForResult 搜索完成后为结果附加纠正与相关建议
	ForResult(ctx context.Context, query *model.SearchQuery, result *model.SearchResult, profile *model.SearchPersonalizationProfile) []model.SearchSuggestion
}

// AnalyticsService 分析服务
type AnalyticsService interface {
	// RecordSearch 缓冲一条搜索分析事件
	RecordSearch(event *model.SearchAnalyticsEvent)

	// RecordClick 记录点击并回填对应搜索事件
	RecordClick(ctx context.Context, click *model.SearchClickEvent) error

	// ComputeMetrics 计算聚合指标
	ComputeMetrics(ctx context.Context, organizationID string, timeRange model.TimeRange) (*model.SearchMetrics, error)

	// ComputeInsights 运行洞察规则
	ComputeInsights(ctx context.Context, organizationID string, timeRange model.TimeRange) ([]model.SearchInsight, error)

	// Flush 立即刷出缓冲事件
	Flush(ctx context.Context) error

	// Close 停止定时刷新并做最后一次刷出
	Close(ctx context.Context) error
}

// CacheService 缓存服务接口
type CacheService interface {
	// 搜索结果缓存
	GetSearchResult(ctx context.Context, key string) (*model.SearchResult, error)
	SetSearchResult(ctx context.Context, key string, result *model.SearchResult, ttl int) error

	// 建议缓存
	GetSuggestions(ctx context.Context, key string) ([]model.SearchSuggestion, error)
	SetSuggestions(ctx context.Context, key string, suggestions []model.SearchSuggestion, ttl int) error

	// 个性化档案缓存
	GetProfile(ctx context.Context, userID, organizationID string) (*model.SearchPersonalizationProfile, error)
	SetProfile(ctx context.Context, profile *model.SearchPersonalizationProfile, ttl int) error
	InvalidateProfile(ctx context.Context, userID, organizationID string) error

	// 热门查询计数
	IncrementHotQuery(ctx context.Context, organizationID, query string) error
	GetHotQueries(ctx context.Context, organizationID string, limit int) ([]string, error)
}

// EventService 事件发布接口
type EventService interface {
	// PublishSearchEvents 发布搜索分析事件批次
	PublishSearchEvents(events []*model.SearchAnalyticsEvent) error

	// PublishClickEvent 发布点击事件
	PublishClickEvent(event *model.SearchClickEvent) error

	// Close 关闭底层生产者
	Close() error
}
