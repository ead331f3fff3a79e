package model

import "time"

// ============ 索引常量 ============

const (
	// IndexDocuments 统一文档索引，所有实体类型共用
	IndexDocuments = "opensign_documents"
)

// ============ 实体类型常量 ============

const (
	EntityTypeDocument         = "document"
	EntityTypeTemplate         = "template"
	EntityTypeUser             = "user"
	EntityTypeOrganization     = "organization"
	EntityTypeSignatureRequest = "signature_request"
	EntityTypeFolder           = "folder"
	EntityTypeAuditLog         = "audit_log"
)

// ValidEntityTypes 所有合法实体类型
var ValidEntityTypes = []string{
	EntityTypeDocument,
	EntityTypeTemplate,
	EntityTypeUser,
	EntityTypeOrganization,
	EntityTypeSignatureRequest,
	EntityTypeFolder,
	EntityTypeAuditLog,
}

// IsValidEntityType 校验实体类型
func IsValidEntityType(entityType string) bool {
	for _, t := range ValidEntityTypes {
		if t == entityType {
			return true
		}
	}
	return false
}

// ============ 权限常量 ============

const (
	PermissionPublic     = "public"
	PermissionUserPrefix = "user:"
	PermissionOrgPrefix  = "org:"
)

// ============ 排序常量 ============

const (
	SortByRelevance = "relevance"
	SortByCreated   = "created_at"
	SortByUpdated   = "updated_at"
	SortByTitle     = "title"

	SortOrderAsc  = "asc"
	SortOrderDesc = "desc"
)

// IsValidSortField 校验排序字段
func IsValidSortField(field string) bool {
	switch field {
	case SortByRelevance, SortByCreated, SortByUpdated, SortByTitle:
		return true
	}
	return false
}

// IsValidSortOrder 校验排序方向
func IsValidSortOrder(order string) bool {
	return order == SortOrderAsc || order == SortOrderDesc
}

// ============ 分页常量 ============

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MinPageSize     = 1
	MaxPageSize     = 100
	MaxQueryLength  = 500
)

// ============ 分面常量 ============

const (
	FacetTypeTerms         = "terms"
	FacetTypeRange         = "range"
	FacetTypeDateHistogram = "date_histogram"
	FacetTypeNested        = "nested"

	DefaultFacetMinCount   = 1
	DefaultFacetMaxBuckets = 20
	MaxFacetFields         = 10

	// HierarchySeparator 层级分面桶键的分隔符
	HierarchySeparator = " > "
)

// FieldEntityType 等搜索文档字段名
const (
	FieldEntityType = "entity_type"
	FieldTags       = "tags"
	FieldCreatedAt  = "created_at"
	FieldUpdatedAt  = "updated_at"
	FieldOrgID      = "organization_id"
	FieldUserID     = "user_id"
)

// DefaultFacetFields 任何请求都包含的基础分面
var DefaultFacetFields = []string{FieldEntityType, FieldTags, FieldCreatedAt}

// EntityFacetFields 各实体类型的扩展分面
var EntityFacetFields = map[string][]string{
	EntityTypeDocument:         {"metadata.file_type", "metadata.size_bytes", "metadata.page_count"},
	EntityTypeTemplate:         {"metadata.category", "metadata.visibility"},
	EntityTypeSignatureRequest: {"metadata.status", "metadata.signer_count"},
	EntityTypeUser:             {"metadata.role"},
	EntityTypeFolder:           {"metadata.folder_path"},
	EntityTypeAuditLog:         {"metadata.action"},
	EntityTypeOrganization:     {"metadata.plan"},
}

// HierarchicalFacetFields 按层级展示的分面字段
var HierarchicalFacetFields = map[string]bool{
	"metadata.category":    true,
	"metadata.folder_path": true,
}

// RangeFacetBounds 数值分面的固定分桶配置 [min,max,step]
var RangeFacetBounds = map[string][3]float64{
	"metadata.page_count":   {0, 100, 10},
	"metadata.size_bytes":   {0, 10485760, 1048576},
	"metadata.signer_count": {0, 20, 2},
}

// ============ 意图常量 ============

const (
	IntentFindTemplate = "find_template"
	IntentFindRecent   = "find_recent"
	IntentFindByAuthor = "find_by_author"
	IntentFindByType   = "find_by_type"
	IntentFindDocument = "find_document"
	IntentUnknown      = "unknown"

	EntitySpanPerson       = "person"
	EntitySpanDate         = "date"
	EntitySpanDocumentType = "document_type"

	DefaultIntentConfidenceThreshold = 0.6
)

// ============ 建议常量 ============

const (
	SuggestionTypeCompletion = "completion"
	SuggestionTypeCorrection = "correction"
	SuggestionTypeRelated    = "related"

	MinSuggestionQueryLength = 2
	MaxSuggestions           = 10
	DefaultSuggestionScore   = 0.5
	CorrectionScore          = 0.9
	MinSuggestionScore       = 0.1
	MaxHistorySuggestions    = 5
)

// ============ 分析常量 ============

const (
	DefaultAnalyticsBatchSize     = 50
	DefaultAnalyticsFlushInterval = 30 * time.Second
	DefaultShutdownTimeout        = 10 * time.Second

	ImpactHigh   = "high"
	ImpactMedium = "medium"
	ImpactLow    = "low"

	InsightSlowResponse   = "slow_response_time"
	InsightLowCTR         = "low_click_through"
	InsightZeroResults    = "zero_result_queries"
	InsightPopularTerms   = "popular_terms"
	InsightUsagePattern   = "usage_pattern"
)

// ============ 健康状态常量 ============

const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// ============ 缓存键常量 ============

const (
	CacheKeySearchResult = "search:result:"
	CacheKeySuggestions  = "search:suggest:"
	CacheKeyHotQueries   = "search:hot:"
	CacheKeyProfile      = "search:profile:"

	DefaultSearchResultTTL = 300
	DefaultSuggestionsTTL  = 600
	DefaultHotQueriesTTL   = 1800
	DefaultProfileTTL      = 3600
)

// ============ 事件主题常量 ============

const (
	TopicSearchEvents = "search-analytics-events"
	TopicClickEvents  = "search-click-events"
)
