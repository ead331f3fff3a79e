package model

import "time"

// ============ 搜索分析事件模型 ============

// ClickThrough 一次搜索内的点击记录
type ClickThrough struct {
	DocumentID string    `json:"document_id"`
	Position   int       `json:"position"`
	ClickedAt  time.Time `json:"clicked_at"`
}

// SearchAnalyticsEvent 单次搜索调用的分析事件
//
// 事件先进入内存缓冲、按批落盘，进程崩溃会丢失未刷出的事件，
// 分析数据是尽力而为的，不在请求关键路径上。
type SearchAnalyticsEvent struct {
	ID             int64                  `json:"id" gorm:"primaryKey;autoIncrement"`
	SearchID       string                 `json:"search_id" gorm:"type:varchar(64);not null;index"`
	OrganizationID string                 `json:"organization_id" gorm:"type:varchar(64);not null;index"`
	UserID         string                 `json:"user_id" gorm:"type:varchar(64);index"`
	SessionID      string                 `json:"session_id" gorm:"type:varchar(64);index"`
	Query          string                 `json:"query" gorm:"type:text"`
	EntityTypes    []string               `json:"entity_types" gorm:"type:json;serializer:json"`
	Filters        map[string]QueryFilter `json:"filters" gorm:"type:json;serializer:json"`
	ResultCount    int64                  `json:"result_count" gorm:"default:0"`
	ClickThroughs  []ClickThrough         `json:"click_throughs" gorm:"type:json;serializer:json"`
	SearchTimeMs   int64                  `json:"search_time_ms" gorm:"not null;index"`
	CreatedAt      time.Time              `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName 表名
func (SearchAnalyticsEvent) TableName() string {
	return "search_analytics_events"
}

// SearchClickEvent 独立的点击事件记录
type SearchClickEvent struct {
	ID             int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	SearchID       string    `json:"search_id" gorm:"type:varchar(64);not null;index"`
	DocumentID     string    `json:"document_id" gorm:"type:varchar(64);not null;index"`
	Position       int       `json:"position" gorm:"default:0"`
	UserID         string    `json:"user_id" gorm:"type:varchar(64);index"`
	OrganizationID string    `json:"organization_id" gorm:"type:varchar(64);not null;index"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName 表名
func (SearchClickEvent) TableName() string {
	return "search_click_events"
}

// ============ 指标与洞察模型 ============

// TimeRange 聚合时间范围
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// QueryStat 查询聚合统计
type QueryStat struct {
	Query      string  `json:"query"`
	Count      int64   `json:"count"`
	AvgResults float64 `json:"avg_results"`
}

// SearchMetrics 某组织在时间范围内的聚合指标
type SearchMetrics struct {
	TotalSearches      int64       `json:"total_searches"`
	UniqueSessions     int64       `json:"unique_sessions"`
	ResponseTimeP50    float64     `json:"response_time_p50_ms"`
	ResponseTimeP95    float64     `json:"response_time_p95_ms"`
	ResponseTimeP99    float64     `json:"response_time_p99_ms"`
	AvgResponseTime    float64     `json:"avg_response_time_ms"`
	SearchesPerHour    float64     `json:"searches_per_hour"`
	ClickThroughRate   float64     `json:"click_through_rate"`
	MeanReciprocalRank float64     `json:"mean_reciprocal_rank"`
	NDCG               float64     `json:"ndcg"`
	TopQueries         []QueryStat `json:"top_queries"`
	ZeroResultQueries  []QueryStat `json:"zero_result_queries"`
	IndexHealth        string      `json:"index_health"`
}

// SearchInsight 规则引擎产出的可执行洞察，Recommendation 永不为空
type SearchInsight struct {
	Type           string `json:"type"`
	Impact         string `json:"impact"` // high/medium/low
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}
