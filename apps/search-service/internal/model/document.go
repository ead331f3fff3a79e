package model

import (
	"fmt"
	"time"
)

// ============ 搜索文档模型 ============

// SearchDocument 可被索引的统一文档单元
//
// 上游业务服务（文档、模板、签署请求等CRUD服务）在各自实体变更时
// 调用索引接口镜像到这里，搜索子系统自身不产生文档。
type SearchDocument struct {
	ID             string                 `json:"id"`
	EntityType     string                 `json:"entity_type"`
	Title          string                 `json:"title"`
	Content        string                 `json:"content"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	OrganizationID string                 `json:"organization_id"`
	UserID         string                 `json:"user_id,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	Permissions    []string               `json:"permissions,omitempty"`

	// Score 和 Highlight 仅出现在搜索结果中，不参与索引
	Score     *SearchScore        `json:"score,omitempty"`
	Highlight map[string][]string `json:"highlight,omitempty"`
}

// Validate 校验文档是否可索引
func (d *SearchDocument) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if d.OrganizationID == "" {
		return fmt.Errorf("document organization_id is required")
	}
	if !IsValidEntityType(d.EntityType) {
		return fmt.Errorf("invalid entity type: %s", d.EntityType)
	}
	return nil
}

// VisibleTo 判断文档对指定用户是否可见
func (d *SearchDocument) VisibleTo(userID, organizationID string) bool {
	if d.UserID == userID && userID != "" {
		return true
	}
	for _, p := range d.Permissions {
		switch p {
		case PermissionPublic,
			PermissionUserPrefix + userID,
			PermissionOrgPrefix + organizationID:
			return true
		}
	}
	return false
}

// ============ 评分模型 ============

// SearchScore 单条结果的打分明细
//
// TextMatch 来自搜索引擎的相关性得分，其余信号由排序阶段叠加，
// Total 是最终排序依据。
type SearchScore struct {
	TextMatch       float64 `json:"text_match"`
	FieldMatch      float64 `json:"field_match"`
	Recency         float64 `json:"recency"`
	Popularity      float64 `json:"popularity"`
	Personalization float64 `json:"personalization"`
	Total           float64 `json:"total"`
}
