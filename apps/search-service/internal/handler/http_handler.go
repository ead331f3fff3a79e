package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"opensign/apps/search-service/internal/dao"
	"opensign/apps/search-service/internal/model"
	"opensign/apps/search-service/internal/service"
	"opensign/pkg/logger"
)

// HTTPHandler HTTP处理器
type HTTPHandler struct {
	searchService service.SearchService
	logger        logger.Logger
}

// NewHTTPHandler 创建HTTP处理器
func NewHTTPHandler(searchService service.SearchService, log logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		searchService: searchService,
		logger:        log,
	}
}

// RegisterRoutes 注册路由
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")

	// 搜索相关路由
	search := api.Group("/search")
	{
		search.POST("/", h.Search)
		search.GET("/suggestions", h.GetSuggestions)
		search.GET("/facets/suggestions", h.GetFacetSuggestions)
		search.POST("/clicks", h.TrackClick)
		search.GET("/metrics", h.GetSearchMetrics)
		search.GET("/insights", h.GetSearchInsights)
	}

	// 个性化档案路由
	profile := api.Group("/search/profile")
	{
		profile.GET("/", h.GetProfile)
		profile.PUT("/", h.UpdateProfile)
	}

	// 索引管理相关路由（管理员接口）
	admin := api.Group("/admin")
	{
		admin.POST("/documents", h.IndexDocument)
		admin.POST("/documents/bulk", h.BulkIndexDocuments)
		admin.GET("/documents/:id", h.GetDocument)
		admin.DELETE("/documents/:type/:id", h.DeleteDocument)
		admin.POST("/index/recreate", h.RecreateIndex)
		admin.POST("/reindex", h.ReindexOrganization)
	}

	// 健康检查
	api.GET("/health", h.HealthCheck)
}

// ============ HTTP响应结构 ============

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// respondSuccess 成功响应
func (h *HTTPHandler) respondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// respondError 错误响应
func (h *HTTPHandler) respondError(c *gin.Context, statusCode int, message string, detail string) {
	c.JSON(statusCode, Response{
		Code:    statusCode,
		Message: message,
		Error:   detail,
	})
}

// ============ 请求绑定辅助方法 ============

// searchContextFrom 从请求头提取调用方身份，身份由网关注入
func searchContextFrom(c *gin.Context) service.SearchContext {
	return service.SearchContext{
		OrganizationID: c.GetHeader("X-Organization-ID"),
		UserID:         c.GetHeader("X-User-ID"),
		SessionID:      c.GetHeader("X-Session-ID"),
	}
}

// searchRequestBody 搜索请求体，filters 为开放字典、绑定后收敛为类型化过滤器
type searchRequestBody struct {
	Query       string                 `json:"query"`
	EntityTypes []string               `json:"entity_types"`
	Filters     map[string]interface{} `json:"filters"`
	Facets      []string               `json:"facets"`
	Sort        *model.SortOption      `json:"sort"`
	Page        int                    `json:"page"`
	Limit       int                    `json:"limit"`
	Highlight   bool                   `json:"highlight"`
	Suggestions bool                   `json:"suggestions"`
	Personalize bool                   `json:"personalize"`
}

// ============ 搜索接口 ============

// Search 通用搜索
func (h *HTTPHandler) Search(c *gin.Context) {
	ctx := c.Request.Context()

	var body searchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	query := &model.SearchQuery{
		Query:       body.Query,
		EntityTypes: body.EntityTypes,
		Filters:     model.ParseFilters(body.Filters),
		Facets:      body.Facets,
		Sort:        body.Sort,
		Pagination:  model.Pagination{Page: body.Page, Limit: body.Limit},
		Highlight:   body.Highlight,
		Suggestions: body.Suggestions,
		Personalize: body.Personalize,
	}

	result, err := h.searchService.Search(ctx, query, searchContextFrom(c))
	if err != nil {
		h.logger.Error(ctx, "Search failed",
			logger.F("query", body.Query),
			logger.F("error", err.Error()))
		h.respondError(c, http.StatusInternalServerError, "search failed", err.Error())
		return
	}

	h.respondSuccess(c, result)
}

// GetSuggestions 获取输入联想建议
func (h *HTTPHandler) GetSuggestions(c *gin.Context) {
	ctx := c.Request.Context()

	prefix := c.Query("q")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(model.MaxSuggestions)))

	suggestions, err := h.searchService.GetSuggestions(ctx, prefix, searchContextFrom(c), limit)
	if err != nil {
		h.logger.Error(ctx, "GetSuggestions failed",
			logger.F("prefix", prefix),
			logger.F("error", err.Error()))
		h.respondError(c, http.StatusInternalServerError, "get suggestions failed", err.Error())
		return
	}

	h.respondSuccess(c, gin.H{"suggestions": suggestions})
}

// GetFacetSuggestions 根据查询文本推荐分面
func (h *HTTPHandler) GetFacetSuggestions(c *gin.Context) {
	query := c.Query("q")
	entityTypes := c.QueryArray("entity_type")

	suggestions := h.searchService.GetFacetSuggestions(c.Request.Context(), query, entityTypes)
	h.respondSuccess(c, gin.H{"facet_suggestions": suggestions})
}

// ============ 行为与分析接口 ============

// clickRequestBody 点击上报请求体
type clickRequestBody struct {
	SearchID   string `json:"search_id" binding:"required"`
	DocumentID string `json:"document_id" binding:"required"`
	Position   int    `json:"position"`
}

// TrackClick 记录搜索结果点击
func (h *HTTPHandler) TrackClick(c *gin.Context) {
	ctx := c.Request.Context()

	var body clickRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	if err := h.searchService.TrackClick(ctx, body.SearchID, body.DocumentID, body.Position, searchContextFrom(c)); err != nil {
		h.logger.Error(ctx, "TrackClick failed",
			logger.F("searchID", body.SearchID),
			logger.F("error", err.Error()))
		h.respondError(c, http.StatusInternalServerError, "track click failed", err.Error())
		return
	}

	h.respondSuccess(c, nil)
}

// parseTimeRange 解析时间范围查询参数，缺省为最近7天
func parseTimeRange(c *gin.Context) model.TimeRange {
	tr := model.TimeRange{
		Start: time.Now().AddDate(0, 0, -7),
		End:   time.Now(),
	}
	if start := c.Query("start"); start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			tr.Start = t
		}
	}
	if end := c.Query("end"); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			tr.End = t
		}
	}
	return tr
}

// GetSearchMetrics 获取聚合搜索指标
func (h *HTTPHandler) GetSearchMetrics(c *gin.Context) {
	ctx := c.Request.Context()
	sc := searchContextFrom(c)

	metrics, err := h.searchService.GetSearchMetrics(ctx, sc.OrganizationID, parseTimeRange(c))
	if err != nil {
		h.logger.Error(ctx, "GetSearchMetrics failed",
			logger.F("organizationID", sc.OrganizationID),
			logger.F("error", err.Error()))
		h.respondError(c, http.StatusInternalServerError, "get search metrics failed", err.Error())
		return
	}

	h.respondSuccess(c, metrics)
}

// GetSearchInsights 获取搜索洞察
func (h *HTTPHandler) GetSearchInsights(c *gin.Context) {
	ctx := c.Request.Context()
	sc := searchContextFrom(c)

	insights, err := h.searchService.GetSearchInsights(ctx, sc.OrganizationID, parseTimeRange(c))
	if err != nil {
		h.logger.Error(ctx, "GetSearchInsights failed",
			logger.F("organizationID", sc.OrganizationID),
			logger.F("error", err.Error()))
		h.respondError(c, http.StatusInternalServerError, "get search insights failed", err.Error())
		return
	}

	h.respondSuccess(c, gin.H{"insights": insights})
}

// ============ 个性化接口 ============

// GetProfile 获取个性化档案
func (h *HTTPHandler) GetProfile(c *gin.Context) {
	ctx := c.Request.Context()
	sc := searchContextFrom(c)

	profile, err := h.searchService.GetPersonalizationProfile(ctx, sc.UserID, sc.OrganizationID)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "get profile failed", err.Error())
		return
	}

	h.respondSuccess(c, profile)
}

// UpdateProfile 更新个性化档案
func (h *HTTPHandler) UpdateProfile(c *gin.Context) {
	ctx := c.Request.Context()
	sc := searchContextFrom(c)

	var profile model.SearchPersonalizationProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		h.respondError(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	// 档案归属以请求身份为准，不信任请求体
	profile.UserID = sc.UserID
	profile.OrganizationID = sc.OrganizationID

	if err := h.searchService.UpdatePersonalizationProfile(ctx, &profile); err != nil {
		h.logger.Error(ctx, "UpdateProfile failed",
			logger.F("userID", sc.UserID),
			logger.F("error", err.Error()))
		h.respondError(c, http.StatusInternalServerError, "update profile failed", err.Error())
		return
	}

	h.respondSuccess(c, profile)
}

// ============ 索引管理接口 ============

// IndexDocument 索引单个文档
func (h *HTTPHandler) IndexDocument(c *gin.Context) {
	ctx := c.Request.Context()

	var doc model.SearchDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		h.respondError(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	if err := h.searchService.IndexDocument(ctx, &doc); err != nil {
		h.logger.Error(ctx, "IndexDocument failed",
			logger.F("documentID", doc.ID),
			logger.F("error", err.Error()))
		h.respondError(c, http.StatusInternalServerError, "index document failed", err.Error())
		return
	}

	h.respondSuccess(c, gin.H{"id": doc.ID})
}

// bulkIndexRequestBody 批量索引请求体
type bulkIndexRequestBody struct {
	Documents []*model.SearchDocument `json:"documents" binding:"required"`
}

// BulkIndexDocuments 批量索引文档
func (h *HTTPHandler) BulkIndexDocuments(c *gin.Context) {
	ctx := c.Request.Context()

	var body bulkIndexRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	itemErrors, err := h.searchService.BulkIndexDocuments(ctx, body.Documents)
	if err != nil {
		h.logger.Error(ctx, "BulkIndexDocuments failed",
			logger.F("count", len(body.Documents)),
			logger.F("error", err.Error()))
		h.respondError(c, http.StatusInternalServerError, "bulk index failed", err.Error())
		return
	}

	h.respondSuccess(c, gin.H{
		"total":  len(body.Documents),
		"failed": len(itemErrors),
		"errors": itemErrors,
	})
}

// GetDocument 获取已索引的文档
func (h *HTTPHandler) GetDocument(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	doc, err := h.searchService.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, dao.ErrDocumentNotFound) {
			h.respondError(c, http.StatusNotFound, "document not found", err.Error())
			return
		}
		h.logger.Error(ctx, "GetDocument failed",
			logger.F("documentID", id),
			logger.F("error", err.Error()))
		h.respondError(c, http.StatusInternalServerError, "get document failed", err.Error())
		return
	}

	h.respondSuccess(c, doc)
}

// RecreateIndex 删除并重建搜索索引，重建后需按组织触发Reindex恢复数据
func (h *HTTPHandler) RecreateIndex(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.searchService.RecreateIndex(ctx); err != nil {
		h.logger.Error(ctx, "RecreateIndex failed",
			logger.F("error", err.Error()))
		h.respondError(c, http.StatusInternalServerError, "recreate index failed", err.Error())
		return
	}

	h.respondSuccess(c, gin.H{"index": model.IndexDocuments})
}

// DeleteDocument 删除文档
func (h *HTTPHandler) DeleteDocument(c *gin.Context) {
	ctx := c.Request.Context()

	entityType := c.Param("type")
	id := c.Param("id")

	if err := h.searchService.DeleteDocument(ctx, id, entityType); err != nil {
		h.logger.Error(ctx, "DeleteDocument failed",
			logger.F("documentID", id),
			logger.F("error", err.Error()))
		h.respondError(c, http.StatusInternalServerError, "delete document failed", err.Error())
		return
	}

	h.respondSuccess(c, nil)
}

// reindexRequestBody 组织重建索引请求体
type reindexRequestBody struct {
	OrganizationID string                  `json:"organization_id" binding:"required"`
	Documents      []*model.SearchDocument `json:"documents"`
}

// ReindexOrganization 重建某组织的全部文档
func (h *HTTPHandler) ReindexOrganization(c *gin.Context) {
	ctx := c.Request.Context()

	var body reindexRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	if err := h.searchService.ReindexOrganization(ctx, body.OrganizationID, body.Documents); err != nil {
		h.logger.Error(ctx, "ReindexOrganization failed",
			logger.F("organizationID", body.OrganizationID),
			logger.F("error", err.Error()))
		h.respondError(c, http.StatusInternalServerError, "reindex failed", err.Error())
		return
	}

	h.respondSuccess(c, gin.H{"organization_id": body.OrganizationID, "indexed": len(body.Documents)})
}

// ============ 健康检查 ============

// HealthCheck 健康检查
func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	status := h.searchService.HealthCheck(c.Request.Context())

	code := http.StatusOK
	if status.Status == model.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
