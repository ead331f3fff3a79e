package model

// ============ 分面模型 ============

// FacetConfig 单个分面的请求配置
type FacetConfig struct {
	Field        string  `json:"field"`
	Type         string  `json:"type"` // terms/range/date_histogram/nested
	Size         int     `json:"size,omitempty"`
	Min          float64 `json:"min,omitempty"`
	Max          float64 `json:"max,omitempty"`
	Step         float64 `json:"step,omitempty"`
	Interval     string  `json:"interval,omitempty"` // date_histogram使用
	Hierarchical bool    `json:"hierarchical,omitempty"`
}

// FacetBucket 分面桶
type FacetBucket struct {
	Key      string        `json:"key"`
	Count    int64         `json:"count"`
	Selected bool          `json:"selected,omitempty"`
	Children []FacetBucket `json:"children,omitempty"`
}

// FacetResult 分面结果
type FacetResult struct {
	Field   string        `json:"field"`
	Type    string        `json:"type"`
	Buckets []FacetBucket `json:"buckets"`
}

// FacetSuggestion 分面字段建议
type FacetSuggestion struct {
	Field    string `json:"field"`
	Label    string `json:"label"`
	Priority int    `json:"priority"`
}

// NewFacetConfig 按字段名推导分面配置
func NewFacetConfig(field string) FacetConfig {
	cfg := FacetConfig{
		Field: field,
		Type:  FacetTypeTerms,
		Size:  DefaultFacetMaxBuckets,
	}

	if field == FieldCreatedAt || field == FieldUpdatedAt {
		cfg.Type = FacetTypeDateHistogram
		cfg.Interval = "month"
		return cfg
	}

	if bounds, ok := RangeFacetBounds[field]; ok {
		cfg.Type = FacetTypeRange
		cfg.Min = bounds[0]
		cfg.Max = bounds[1]
		cfg.Step = bounds[2]
		return cfg
	}

	if HierarchicalFacetFields[field] {
		cfg.Hierarchical = true
	}

	return cfg
}
