package model

// ============ 查询意图模型 ============

// IntentEntity 从查询文本中抽取的实体片段
type IntentEntity struct {
	Type  string `json:"type"` // person/date/document_type
	Value string `json:"value"`
}

// SearchIntent 查询意图分类结果，仅在单次请求内存活，不落盘
type SearchIntent struct {
	Type       string            `json:"type"`
	Confidence float64           `json:"confidence"`
	Entities   []IntentEntity    `json:"entities,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Entity 取第一个指定类型的实体值，不存在返回空串
func (i *SearchIntent) Entity(entityType string) string {
	for _, e := range i.Entities {
		if e.Type == entityType {
			return e.Value
		}
	}
	return ""
}
