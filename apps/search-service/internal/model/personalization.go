package model

import "time"

// ============ 个性化档案模型 ============

// SearchPersonalizationProfile 用户搜索个性化档案，按 (user, organization) 维度存储
//
// 档案由点击/搜索追踪增量更新，个性化请求开始时读取；
// 搜索子系统只读写，不负责档案的删除。
type SearchPersonalizationProfile struct {
	ID             int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID         string `json:"user_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_profile_user_org"`
	OrganizationID string `json:"organization_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_profile_user_org"`

	// 显式偏好
	PreferredEntityTypes []string `json:"preferred_entity_types" gorm:"type:json;serializer:json"`
	PreferredSortField   string   `json:"preferred_sort_field" gorm:"type:varchar(50)"`
	PreferredSortOrder   string   `json:"preferred_sort_order" gorm:"type:varchar(10)"`
	FacetOrder           []string `json:"facet_order" gorm:"type:json;serializer:json"`

	// 行为信号
	SearchHistory []string         `json:"search_history" gorm:"type:json;serializer:json"`
	ClickCounts   map[string]int64 `json:"click_counts" gorm:"type:json;serializer:json"`
	DwellTimes    map[string]int64 `json:"dwell_times" gorm:"type:json;serializer:json"`

	// 上下文信号
	RecentDocuments  []string `json:"recent_documents" gorm:"type:json;serializer:json"`
	Collaborators    []string `json:"collaborators" gorm:"type:json;serializer:json"`
	WorkingHourStart int      `json:"working_hour_start" gorm:"default:9"`
	WorkingHourEnd   int      `json:"working_hour_end" gorm:"default:18"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (SearchPersonalizationProfile) TableName() string {
	return "search_personalization_profiles"
}

// DefaultProfile 档案不存在时的默认值，查无档案不视为错误
func DefaultProfile(userID, organizationID string) *SearchPersonalizationProfile {
	return &SearchPersonalizationProfile{
		UserID:               userID,
		OrganizationID:       organizationID,
		PreferredEntityTypes: []string{},
		FacetOrder:           []string{},
		SearchHistory:        []string{},
		ClickCounts:          make(map[string]int64),
		DwellTimes:           make(map[string]int64),
		RecentDocuments:      []string{},
		Collaborators:        []string{},
		WorkingHourStart:     9,
		WorkingHourEnd:       18,
	}
}

// RecordSearch 追加一条搜索历史，保留最近50条
func (p *SearchPersonalizationProfile) RecordSearch(query string) {
	if query == "" {
		return
	}
	p.SearchHistory = append([]string{query}, p.SearchHistory...)
	if len(p.SearchHistory) > 50 {
		p.SearchHistory = p.SearchHistory[:50]
	}
}

// RecordClick 累加文档点击次数
func (p *SearchPersonalizationProfile) RecordClick(documentID string) {
	if p.ClickCounts == nil {
		p.ClickCounts = make(map[string]int64)
	}
	p.ClickCounts[documentID]++
}

// IsCollaborator 判断某用户是否为声明的协作者
func (p *SearchPersonalizationProfile) IsCollaborator(userID string) bool {
	for _, c := range p.Collaborators {
		if c == userID {
			return true
		}
	}
	return false
}

// HasRecentDocument 判断文档是否在最近访问列表中
func (p *SearchPersonalizationProfile) HasRecentDocument(documentID string) bool {
	for _, d := range p.RecentDocuments {
		if d == documentID {
			return true
		}
	}
	return false
}

// PrefersEntityType 判断实体类型是否在偏好列表中
func (p *SearchPersonalizationProfile) PrefersEntityType(entityType string) bool {
	for _, t := range p.PreferredEntityTypes {
		if t == entityType {
			return true
		}
	}
	return false
}
