package model

import (
	"fmt"
)

// ============ 过滤器模型 ============

// 过滤器种类
const (
	FilterKindTerm  = "term"
	FilterKindTerms = "terms"
	FilterKindRange = "range"
)

// RangeBounds 范围过滤的边界，任一侧可为空
type RangeBounds struct {
	GTE interface{} `json:"gte,omitempty"`
	LTE interface{} `json:"lte,omitempty"`
}

// QueryFilter 类型化的过滤器（term/terms/range三选一）
//
// 开放的 filters 字典在入口处收敛为该联合类型，查询构建器据此做穷尽分支。
type QueryFilter struct {
	Kind   string        `json:"kind"`
	Value  interface{}   `json:"value,omitempty"`
	Values []interface{} `json:"values,omitempty"`
	Range  *RangeBounds  `json:"range,omitempty"`
}

// TermFilter 构造单值过滤器
func TermFilter(value interface{}) QueryFilter {
	return QueryFilter{Kind: FilterKindTerm, Value: value}
}

// TermsFilter 构造多值过滤器
func TermsFilter(values ...interface{}) QueryFilter {
	return QueryFilter{Kind: FilterKindTerms, Values: values}
}

// RangeFilter 构造范围过滤器
func RangeFilter(gte, lte interface{}) QueryFilter {
	return QueryFilter{Kind: FilterKindRange, Range: &RangeBounds{GTE: gte, LTE: lte}}
}

// ParseFilters 将开放的过滤字典收敛为类型化过滤器
//
// 数组 -> terms，带gte/lte的对象 -> range，标量 -> term。
func ParseFilters(raw map[string]interface{}) map[string]QueryFilter {
	if len(raw) == 0 {
		return nil
	}

	filters := make(map[string]QueryFilter, len(raw))
	for field, value := range raw {
		switch v := value.(type) {
		case []interface{}:
			filters[field] = TermsFilter(v...)
		case map[string]interface{}:
			bounds := &RangeBounds{}
			if gte, ok := v["gte"]; ok {
				bounds.GTE = gte
			}
			if lte, ok := v["lte"]; ok {
				bounds.LTE = lte
			}
			if bounds.GTE == nil && bounds.LTE == nil {
				// 非range形状的对象无法解释，跳过
				continue
			}
			filters[field] = QueryFilter{Kind: FilterKindRange, Range: bounds}
		case nil:
			continue
		default:
			filters[field] = TermFilter(v)
		}
	}

	return filters
}

// ============ 搜索请求模型 ============

// SortOption 排序选项
type SortOption struct {
	Field string `json:"field"`
	Order string `json:"order"`
}

// Pagination 分页参数
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// SearchQuery 搜索请求
//
// Query 为空是合法的浏览模式。
type SearchQuery struct {
	Query       string                 `json:"query,omitempty"`
	EntityTypes []string               `json:"entity_types,omitempty"`
	Filters     map[string]QueryFilter `json:"filters,omitempty"`
	Facets      []string               `json:"facets,omitempty"`
	Sort        *SortOption            `json:"sort,omitempty"`
	Pagination  Pagination             `json:"pagination"`
	Highlight   bool                   `json:"highlight,omitempty"`
	Suggestions bool                   `json:"suggestions,omitempty"`
	Personalize bool                   `json:"personalize,omitempty"`

	// OriginalQuery 保留拼写纠正前的原始文本，供建议生成使用
	OriginalQuery string `json:"-"`
}

// Normalize 设置默认值并把分页收敛到合法区间
func (q *SearchQuery) Normalize() {
	if q.Pagination.Page < DefaultPage {
		q.Pagination.Page = DefaultPage
	}
	if q.Pagination.Limit <= 0 {
		q.Pagination.Limit = DefaultPageSize
	}
	if q.Pagination.Limit < MinPageSize {
		q.Pagination.Limit = MinPageSize
	}
	if q.Pagination.Limit > MaxPageSize {
		q.Pagination.Limit = MaxPageSize
	}
	if q.OriginalQuery == "" {
		q.OriginalQuery = q.Query
	}
}

// Validate 校验搜索请求
func (q *SearchQuery) Validate() error {
	if len(q.Query) > MaxQueryLength {
		return fmt.Errorf("search query too long (max %d characters)", MaxQueryLength)
	}
	for _, t := range q.EntityTypes {
		if !IsValidEntityType(t) {
			return fmt.Errorf("invalid entity type: %s", t)
		}
	}
	if q.Sort != nil {
		if !IsValidSortField(q.Sort.Field) {
			return fmt.Errorf("invalid sort field: %s", q.Sort.Field)
		}
		if q.Sort.Order != "" && !IsValidSortOrder(q.Sort.Order) {
			return fmt.Errorf("invalid sort order: %s", q.Sort.Order)
		}
	}
	return nil
}

// HasFilterValue 判断某字段的过滤器是否命中给定值，用于分面选中标记
func (q *SearchQuery) HasFilterValue(field, value string) bool {
	f, ok := q.Filters[field]
	if !ok {
		return false
	}
	switch f.Kind {
	case FilterKindTerm:
		return fmt.Sprintf("%v", f.Value) == value
	case FilterKindTerms:
		for _, v := range f.Values {
			if fmt.Sprintf("%v", v) == value {
				return true
			}
		}
	}
	return false
}

// ============ 搜索响应模型 ============

// SearchResult 搜索响应
type SearchResult struct {
	Documents   []*SearchDocument  `json:"documents"`
	Facets      []FacetResult      `json:"facets,omitempty"`
	Suggestions []SearchSuggestion `json:"suggestions,omitempty"`
	Total       int64              `json:"total"`
	Page        int                `json:"page"`
	Limit       int                `json:"limit"`
	SearchTime  int64              `json:"search_time_ms"`
	SearchID    string             `json:"search_id"`
}

// SearchSuggestion 搜索建议
type SearchSuggestion struct {
	Text      string  `json:"text"`
	Type      string  `json:"type"` // completion/correction/related
	Score     float64 `json:"score"`
	Highlight string  `json:"highlight,omitempty"`
}
