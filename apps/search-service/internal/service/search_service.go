package service

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"opensign/apps/search-service/internal/dao"
	"opensign/apps/search-service/internal/model"
	"opensign/pkg/logger"
)

// reindexChunkSize 重建索引时每个批量请求的文档数
const reindexChunkSize = 500

// searchService 搜索服务实现
//
// 编排完整流水线：缓存 -> 档案加载 -> 查询增强 -> 查询执行 ->
// 排序 -> 分面 -> 建议 -> 分析。除查询执行外任何阶段失败都降级，
// 请求只在搜索引擎本身失败时才整体失败。
type searchService struct {
	searchDAO    dao.SearchDAO
	analyticsDAO dao.AnalyticsDAO
	profileDAO   dao.ProfileDAO
	enhancement  EnhancementService
	facets       FacetService
	ranking      RankingService
	suggestions  SuggestionService
	analytics    AnalyticsService
	cache        CacheService
	events       EventService
	config       *ServiceConfig
	logger       logger.Logger
}

// NewSearchService 创建搜索服务实例，组装全部流水线子服务
func NewSearchService(
	searchDAO dao.SearchDAO,
	analyticsDAO dao.AnalyticsDAO,
	profileDAO dao.ProfileDAO,
	cache CacheService,
	events EventService,
	config *ServiceConfig,
	log logger.Logger,
) SearchService {
	if config == nil {
		config = DefaultServiceConfig()
	}
	if events == nil {
		events = NewNoopEventService()
	}

	return &searchService{
		searchDAO:    searchDAO,
		analyticsDAO: analyticsDAO,
		profileDAO:   profileDAO,
		enhancement:  NewEnhancementService(config, log),
		facets:       NewFacetService(config, log),
		ranking:      NewRankingService(config, log),
		suggestions:  NewSuggestionService(searchDAO, config, log),
		analytics:    NewAnalyticsService(analyticsDAO, profileDAO, searchDAO, cache, events, config, log),
		cache:        cache,
		events:       events,
		config:       config,
		logger:       log,
	}
}

// ============ 搜索功能 ============

// Search 执行完整的搜索流水线
func (s *searchService) Search(ctx context.Context, query *model.SearchQuery, sc SearchContext) (*model.SearchResult, error) {
	if query == nil {
		return nil, fmt.Errorf("search query is required")
	}
	if sc.OrganizationID == "" {
		return nil, fmt.Errorf("organization id is required")
	}

	query.Normalize()
	if err := query.Validate(); err != nil {
		return nil, err
	}

	personalized := query.Personalize && sc.UserID != "" && s.config.EnablePersonalization

	// 个性化结果因人而异，不走共享缓存
	var cacheKey string
	if s.cacheable() && !personalized {
		cacheKey = searchCacheKey(query, sc)
		if cached, err := s.cache.GetSearchResult(ctx, cacheKey); err == nil {
			s.recordSearchEvent(query, cached, sc, 0)
			return cached, nil
		} else if err != ErrCacheMiss {
			s.logger.Warn(ctx, "Search result cache read failed",
				logger.F("error", err.Error()))
		}
	}

	var profile *model.SearchPersonalizationProfile
	if personalized {
		profile = s.loadProfile(ctx, sc.UserID, sc.OrganizationID)
	}

	query = s.enhancement.Enhance(ctx, query, profile)

	var facetConfigs []model.FacetConfig
	if s.config.EnableFacets {
		facetConfigs = s.facets.ChooseFacets(query)
	}

	start := time.Now()
	raw, err := s.searchDAO.Search(ctx, query, sc.OrganizationID, sc.UserID, facetConfigs)
	if err != nil {
		s.logger.Error(ctx, "Search execution failed",
			logger.F("organizationID", sc.OrganizationID),
			logger.F("query", query.OriginalQuery),
			logger.F("error", err.Error()))
		return nil, fmt.Errorf("failed to execute search: %v", err)
	}
	elapsed := time.Since(start).Milliseconds()

	result := &model.SearchResult{
		Documents:  raw.Documents,
		Total:      raw.Total,
		Page:       query.Pagination.Page,
		Limit:      query.Pagination.Limit,
		SearchTime: elapsed,
		SearchID:   uuid.New().String(),
	}

	result.Documents = s.ranking.Rank(result.Documents, query, profile, time.Now())

	if s.config.EnableFacets {
		result.Facets = s.facets.BuildFacets(raw.Aggregations, facetConfigs, query)
	}

	if s.config.EnableSuggestions && query.Suggestions {
		result.Suggestions = s.suggestions.ForResult(ctx, query, result, profile)
	}

	s.recordSearchEvent(query, result, sc, elapsed)
	s.recordUserActivity(query, sc, profile)

	if cacheKey != "" {
		ttl := s.config.CacheTTL["search_results"]
		if err := s.cache.SetSearchResult(ctx, cacheKey, result, ttl); err != nil {
			s.logger.Warn(ctx, "Search result cache write failed",
				logger.F("error", err.Error()))
		}
	}

	return result, nil
}

// cacheable 缓存是否可用
func (s *searchService) cacheable() bool {
	return s.config.CacheEnabled && s.cache != nil
}

// searchCacheKey 由组织与规范化后的请求生成缓存键
func searchCacheKey(query *model.SearchQuery, sc SearchContext) string {
	data, err := json.Marshal(query)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s:%x", sc.OrganizationID, md5.Sum(data))
}

// loadProfile 加载个性化档案，优先读缓存，失败时降级为无档案
func (s *searchService) loadProfile(ctx context.Context, userID, organizationID string) *model.SearchPersonalizationProfile {
	if s.cacheable() {
		if profile, err := s.cache.GetProfile(ctx, userID, organizationID); err == nil {
			return profile
		}
	}

	profile, err := s.profileDAO.GetProfile(ctx, userID, organizationID)
	if err != nil {
		s.logger.Warn(ctx, "Failed to load personalization profile, continuing without it",
			logger.F("userID", userID),
			logger.F("error", err.Error()))
		return nil
	}

	if s.cacheable() {
		if err := s.cache.SetProfile(ctx, profile, s.config.CacheTTL["profiles"]); err != nil {
			s.logger.Warn(ctx, "Profile cache write failed",
				logger.F("error", err.Error()))
		}
	}
	return profile
}

// recordSearchEvent 缓冲本次搜索的分析事件
func (s *searchService) recordSearchEvent(query *model.SearchQuery, result *model.SearchResult, sc SearchContext, elapsed int64) {
	if !s.config.EnableAnalytics {
		return
	}
	s.analytics.RecordSearch(&model.SearchAnalyticsEvent{
		SearchID:       result.SearchID,
		OrganizationID: sc.OrganizationID,
		UserID:         sc.UserID,
		SessionID:      sc.SessionID,
		Query:          query.OriginalQuery,
		EntityTypes:    query.EntityTypes,
		Filters:        query.Filters,
		ResultCount:    result.Total,
		SearchTimeMs:   elapsed,
		CreatedAt:      time.Now(),
	})
}

// recordUserActivity 异步更新热门查询计数与用户搜索历史
func (s *searchService) recordUserActivity(query *model.SearchQuery, sc SearchContext, profile *model.SearchPersonalizationProfile) {
	if query.OriginalQuery == "" {
		return
	}

	go func() {
		ctx := context.Background()

		if s.cacheable() {
			if err := s.cache.IncrementHotQuery(ctx, sc.OrganizationID, query.OriginalQuery); err != nil {
				s.logger.Debug(ctx, "Hot query increment failed",
					logger.F("error", err.Error()))
			}
		}

		if profile == nil {
			return
		}
		profile.RecordSearch(query.OriginalQuery)
		if err := s.profileDAO.SaveProfile(ctx, profile); err != nil {
			s.logger.Warn(ctx, "Failed to save search history",
				logger.F("userID", profile.UserID),
				logger.F("error", err.Error()))
			return
		}
		if s.cacheable() {
			if err := s.cache.InvalidateProfile(ctx, profile.UserID, profile.OrganizationID); err != nil {
				s.logger.Debug(ctx, "Profile cache invalidation failed",
					logger.F("error", err.Error()))
			}
		}
	}()
}

// GetSuggestions 获取输入联想建议
//
// 带用户身份的请求混入个人历史，不走共享缓存。
func (s *searchService) GetSuggestions(ctx context.Context, prefix string, sc SearchContext, limit int) ([]model.SearchSuggestion, error) {
	if sc.OrganizationID == "" {
		return nil, fmt.Errorf("organization id is required")
	}
	if !s.config.EnableSuggestions {
		return nil, nil
	}

	var cacheKey string
	if s.cacheable() && sc.UserID == "" {
		cacheKey = fmt.Sprintf("%s:%s:%d", sc.OrganizationID, prefix, limit)
		if cached, err := s.cache.GetSuggestions(ctx, cacheKey); err == nil {
			return cached, nil
		}
	}

	var profile *model.SearchPersonalizationProfile
	if sc.UserID != "" && s.config.EnablePersonalization {
		profile = s.loadProfile(ctx, sc.UserID, sc.OrganizationID)
	}

	suggestions, err := s.suggestions.Complete(ctx, prefix, sc.OrganizationID, profile, limit)
	if err != nil {
		return nil, err
	}

	if cacheKey != "" && len(suggestions) > 0 {
		if err := s.cache.SetSuggestions(ctx, cacheKey, suggestions, s.config.CacheTTL["suggestions"]); err != nil {
			s.logger.Warn(ctx, "Suggestion cache write failed",
				logger.F("error", err.Error()))
		}
	}
	return suggestions, nil
}

// GetFacetSuggestions 根据查询文本推荐可用分面
func (s *searchService) GetFacetSuggestions(ctx context.Context, query string, entityTypes []string) []model.FacetSuggestion {
	if !s.config.EnableFacets {
		return nil
	}
	return s.facets.SuggestFacets(query, entityTypes)
}

// ============ 索引管理 ============

// IndexDocument 索引单个文档
func (s *searchService) IndexDocument(ctx context.Context, doc *model.SearchDocument) error {
	if doc == nil {
		return fmt.Errorf("document is required")
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	if err := s.searchDAO.IndexDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to index document: %v", err)
	}

	s.logger.Debug(ctx, "Document indexed",
		logger.F("documentID", doc.ID),
		logger.F("entityType", doc.EntityType))
	return nil
}

// BulkIndexDocuments 批量索引文档
//
// 校验失败的文档记入失败明细但不阻断其余文档，返回错误仅代表
// 整个批量请求无法送达。
func (s *searchService) BulkIndexDocuments(ctx context.Context, docs []*model.SearchDocument) ([]dao.BulkItemError, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	var itemErrors []dao.BulkItemError
	valid := make([]*model.SearchDocument, 0, len(docs))
	for _, doc := range docs {
		if err := doc.Validate(); err != nil {
			itemErrors = append(itemErrors, dao.BulkItemError{
				DocumentID: doc.ID,
				Reason:     err.Error(),
			})
			continue
		}
		valid = append(valid, doc)
	}

	if len(valid) == 0 {
		return itemErrors, nil
	}

	bulkErrors, err := s.searchDAO.BulkIndexDocuments(ctx, valid)
	if err != nil {
		return itemErrors, fmt.Errorf("failed to bulk index documents: %v", err)
	}
	itemErrors = append(itemErrors, bulkErrors...)

	s.logger.Info(ctx, "Bulk index completed",
		logger.F("total", len(docs)),
		logger.F("failed", len(itemErrors)))
	return itemErrors, nil
}

// GetDocument 按ID获取已索引的文档
func (s *searchService) GetDocument(ctx context.Context, id string) (*model.SearchDocument, error) {
	if id == "" {
		return nil, fmt.Errorf("document id is required")
	}
	return s.searchDAO.GetDocument(ctx, id)
}

// DeleteDocument 删除文档
func (s *searchService) DeleteDocument(ctx context.Context, id, entityType string) error {
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	if err := s.searchDAO.DeleteDocument(ctx, id, entityType); err != nil {
		return fmt.Errorf("failed to delete document: %v", err)
	}
	return nil
}

// RecreateIndex 删除并重建文档索引
//
// 用于索引映射变更，重建后索引为空，需逐组织调用 ReindexOrganization 恢复数据。
func (s *searchService) RecreateIndex(ctx context.Context) error {
	if err := s.searchDAO.DeleteIndex(ctx, model.IndexDocuments); err != nil {
		return fmt.Errorf("failed to delete index: %v", err)
	}
	if err := s.searchDAO.EnsureIndex(ctx, model.IndexDocuments); err != nil {
		return fmt.Errorf("failed to recreate index: %v", err)
	}
	s.logger.Info(ctx, "Search index recreated",
		logger.F("index", model.IndexDocuments))
	return nil
}

// ReindexOrganization 重建某组织的全部文档
//
// 先删除组织内旧文档，再分块批量写入新文档，个别文档失败不中止，
// 最终汇总失败数量。
func (s *searchService) ReindexOrganization(ctx context.Context, organizationID string, docs []*model.SearchDocument) error {
	if organizationID == "" {
		return fmt.Errorf("organization id is required")
	}

	if err := s.searchDAO.DeleteByOrganization(ctx, organizationID); err != nil {
		return fmt.Errorf("failed to clear organization documents: %v", err)
	}

	var failed int
	for offset := 0; offset < len(docs); offset += reindexChunkSize {
		end := offset + reindexChunkSize
		if end > len(docs) {
			end = len(docs)
		}
		itemErrors, err := s.BulkIndexDocuments(ctx, docs[offset:end])
		if err != nil {
			return fmt.Errorf("failed to reindex organization %s: %v", organizationID, err)
		}
		failed += len(itemErrors)
	}

	s.logger.Info(ctx, "Organization reindex completed",
		logger.F("organizationID", organizationID),
		logger.F("total", len(docs)),
		logger.F("failed", failed))

	if failed > 0 {
		return fmt.Errorf("reindex completed with %d failed documents", failed)
	}
	return nil
}

// ============ 行为与分析 ============

// TrackClick 记录搜索结果点击
func (s *searchService) TrackClick(ctx context.Context, searchID, documentID string, position int, sc SearchContext) error {
	if searchID == "" || documentID == "" {
		return fmt.Errorf("search id and document id are required")
	}
	if sc.OrganizationID == "" {
		return fmt.Errorf("organization id is required")
	}
	if !s.config.EnableAnalytics {
		return nil
	}

	return s.analytics.RecordClick(ctx, &model.SearchClickEvent{
		SearchID:       searchID,
		DocumentID:     documentID,
		Position:       position,
		UserID:         sc.UserID,
		OrganizationID: sc.OrganizationID,
		CreatedAt:      time.Now(),
	})
}

// GetSearchMetrics 获取组织的聚合搜索指标
func (s *searchService) GetSearchMetrics(ctx context.Context, organizationID string, timeRange model.TimeRange) (*model.SearchMetrics, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("organization id is required")
	}
	return s.analytics.ComputeMetrics(ctx, organizationID, timeRange)
}

// GetSearchInsights 获取规则引擎产出的洞察
func (s *searchService) GetSearchInsights(ctx context.Context, organizationID string, timeRange model.TimeRange) ([]model.SearchInsight, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("organization id is required")
	}
	return s.analytics.ComputeInsights(ctx, organizationID, timeRange)
}

// ============ 个性化 ============

// GetPersonalizationProfile 获取用户档案
func (s *searchService) GetPersonalizationProfile(ctx context.Context, userID, organizationID string) (*model.SearchPersonalizationProfile, error) {
	if userID == "" || organizationID == "" {
		return nil, fmt.Errorf("user id and organization id are required")
	}
	return s.profileDAO.GetProfile(ctx, userID, organizationID)
}

// UpdatePersonalizationProfile 更新用户档案并失效缓存
func (s *searchService) UpdatePersonalizationProfile(ctx context.Context, profile *model.SearchPersonalizationProfile) error {
	if profile == nil {
		return fmt.Errorf("profile is required")
	}
	if err := s.profileDAO.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("failed to save personalization profile: %v", err)
	}
	if s.cacheable() {
		if err := s.cache.InvalidateProfile(ctx, profile.UserID, profile.OrganizationID); err != nil {
			s.logger.Warn(ctx, "Profile cache invalidation failed",
				logger.F("userID", profile.UserID),
				logger.F("error", err.Error()))
		}
	}
	return nil
}

// ============ 运维 ============

// HealthCheck 聚合各依赖组件的健康状态
//
// 搜索引擎不可用整体判不健康，其余组件故障只降级。
func (s *searchService) HealthCheck(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:     model.HealthHealthy,
		Components: make(map[string]string),
	}

	cluster := s.searchDAO.GetClusterHealth(ctx)
	switch {
	case !cluster.Reachable || cluster.Status == "red":
		status.Components["elasticsearch"] = model.HealthUnhealthy
		status.Status = model.HealthUnhealthy
	case cluster.Status == "yellow":
		status.Components["elasticsearch"] = model.HealthDegraded
		status.Status = model.HealthDegraded
	default:
		status.Components["elasticsearch"] = model.HealthHealthy
	}

	if cluster.Reachable {
		if stats, err := s.searchDAO.GetIndexStats(ctx, model.IndexDocuments); err == nil {
			status.IndexStats = stats
		}
	}

	if err := s.analyticsDAO.Ping(ctx); err != nil {
		status.Components["postgres"] = model.HealthUnhealthy
		if status.Status == model.HealthHealthy {
			status.Status = model.HealthDegraded
		}
	} else {
		status.Components["postgres"] = model.HealthHealthy
	}

	return status
}

// Shutdown 优雅关闭，刷出未提交的分析事件并关闭事件生产者
func (s *searchService) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := s.analytics.Close(ctx); err != nil {
		firstErr = err
		s.logger.Error(ctx, "Failed to close analytics service",
			logger.F("error", err.Error()))
	}
	if err := s.events.Close(); err != nil {
		if firstErr == nil {
			firstErr = err
		}
		s.logger.Error(ctx, "Failed to close event producer",
			logger.F("error", err.Error()))
	}
	return firstErr
}
