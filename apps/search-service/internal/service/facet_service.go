package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"opensign/apps/search-service/internal/dao"
	"opensign/apps/search-service/internal/model"
	"opensign/pkg/logger"
)

// facetService 分面引擎实现
type facetService struct {
	config *ServiceConfig
	logger logger.Logger
}

// NewFacetService 创建分面引擎实例
func NewFacetService(config *ServiceConfig, log logger.Logger) FacetService {
	return &facetService{
		config: config,
		logger: log,
	}
}

// ChooseFacets 选择本次搜索的分面配置
//
// 请求显式给出分面字段时以请求为准，否则用基础分面加实体类型扩展分面，
// 总数固定不超过上限，超出部分静默丢弃。
func (s *facetService) ChooseFacets(query *model.SearchQuery) []model.FacetConfig {
	var fields []string
	if len(query.Facets) > 0 {
		fields = query.Facets
	} else {
		fields = append(fields, model.DefaultFacetFields...)
		for _, entityType := range query.EntityTypes {
			fields = append(fields, model.EntityFacetFields[entityType]...)
		}
	}

	seen := make(map[string]bool, len(fields))
	configs := make([]model.FacetConfig, 0, len(fields))
	for _, field := range fields {
		if field == "" || seen[field] {
			continue
		}
		seen[field] = true
		configs = append(configs, model.NewFacetConfig(field))
		if len(configs) >= model.MaxFacetFields {
			break
		}
	}
	return configs
}

// BuildFacets 将引擎原始聚合后处理为分面结果
//
// 后处理顺序：选中标记 -> 最小计数过滤 -> 桶数截断 -> 层级重组/范围重分桶。
// 单个分面解析失败只丢弃该分面，不影响其余分面。
func (s *facetService) BuildFacets(aggregations map[string]interface{}, configs []model.FacetConfig, query *model.SearchQuery) []model.FacetResult {
	if len(aggregations) == 0 {
		return nil
	}

	results := make([]model.FacetResult, 0, len(configs))
	for _, cfg := range configs {
		agg, ok := aggregations[cfg.Field]
		if !ok {
			continue
		}
		buckets := dao.ExtractAggBuckets(agg)
		if buckets == nil {
			continue
		}

		switch {
		case cfg.Type == model.FacetTypeRange:
			buckets = s.rebucketRange(buckets, cfg)
		case cfg.Hierarchical:
			buckets = s.buildHierarchy(buckets)
		default:
			buckets = s.trimBuckets(buckets)
		}

		s.markSelected(buckets, cfg.Field, query)

		results = append(results, model.FacetResult{
			Field:   cfg.Field,
			Type:    cfg.Type,
			Buckets: buckets,
		})
	}
	return results
}

// trimBuckets 过滤低计数桶并截断到最大桶数
func (s *facetService) trimBuckets(buckets []model.FacetBucket) []model.FacetBucket {
	kept := make([]model.FacetBucket, 0, len(buckets))
	for _, b := range buckets {
		if b.Count < model.DefaultFacetMinCount {
			continue
		}
		kept = append(kept, b)
		if len(kept) >= model.DefaultFacetMaxBuckets {
			break
		}
	}
	return kept
}

// buildHierarchy 把"父 > 子"形式的扁平桶重组为树
//
// 父桶计数为其所有子桶计数之和，父桶本身的直接命中也计入。
func (s *facetService) buildHierarchy(buckets []model.FacetBucket) []model.FacetBucket {
	type node struct {
		bucket   model.FacetBucket
		children map[string]*node
		order    []string
	}

	root := &node{children: make(map[string]*node)}
	for _, b := range buckets {
		if b.Count < model.DefaultFacetMinCount {
			continue
		}
		parts := strings.Split(b.Key, model.HierarchySeparator)
		curr := root
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			child, ok := curr.children[part]
			if !ok {
				child = &node{
					bucket:   model.FacetBucket{Key: part},
					children: make(map[string]*node),
				}
				curr.children[part] = child
				curr.order = append(curr.order, part)
			}
			child.bucket.Count += b.Count
			curr = child
		}
	}

	var collect func(n *node) []model.FacetBucket
	collect = func(n *node) []model.FacetBucket {
		out := make([]model.FacetBucket, 0, len(n.order))
		for _, key := range n.order {
			child := n.children[key]
			b := child.bucket
			b.Children = collect(child)
			out = append(out, b)
		}
		// 同级按计数降序，计数相同按键名保证稳定
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Count != out[j].Count {
				return out[i].Count > out[j].Count
			}
			return out[i].Key < out[j].Key
		})
		if len(out) > model.DefaultFacetMaxBuckets {
			out = out[:model.DefaultFacetMaxBuckets]
		}
		return out
	}
	return collect(root)
}

// rebucketRange 把直方图桶重组为带标签的固定区间桶，空区间丢弃
func (s *facetService) rebucketRange(buckets []model.FacetBucket, cfg model.FacetConfig) []model.FacetBucket {
	if cfg.Step <= 0 {
		return s.trimBuckets(buckets)
	}

	counts := make(map[float64]int64)
	for _, b := range buckets {
		start, err := strconv.ParseFloat(b.Key, 64)
		if err != nil {
			continue
		}
		// 直方图起点对齐到配置步长
		aligned := cfg.Min + float64(int64((start-cfg.Min)/cfg.Step))*cfg.Step
		counts[aligned] += b.Count
	}

	var out []model.FacetBucket
	for lower := cfg.Min; lower < cfg.Max; lower += cfg.Step {
		count := counts[lower]
		if count < model.DefaultFacetMinCount {
			continue
		}
		out = append(out, model.FacetBucket{
			Key:   fmt.Sprintf("%s-%s", formatRangeBound(lower), formatRangeBound(lower+cfg.Step)),
			Count: count,
		})
	}
	return out
}

func formatRangeBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// markSelected 根据当前过滤条件标记已选中的桶
func (s *facetService) markSelected(buckets []model.FacetBucket, field string, query *model.SearchQuery) {
	for i := range buckets {
		if query.HasFilterValue(field, buckets[i].Key) {
			buckets[i].Selected = true
		}
		if field == model.FieldEntityType {
			for _, t := range query.EntityTypes {
				if t == buckets[i].Key {
					buckets[i].Selected = true
				}
			}
		}
		s.markSelected(buckets[i].Children, field, query)
	}
}

// facetKeywordHints 查询关键词到分面字段的映射，数字越大优先级越高
var facetKeywordHints = []struct {
	keywords []string
	field    string
	label    string
	priority int
}{
	{[]string{"status", "pending", "completed", "signed", "expired"}, "metadata.status", "Status", 5},
	{[]string{"pdf", "docx", "file", "format"}, "metadata.file_type", "File type", 4},
	{[]string{"category", "type"}, "metadata.category", "Category", 4},
	{[]string{"folder", "directory"}, "metadata.folder_path", "Folder", 3},
	{[]string{"page", "pages", "long", "short"}, "metadata.page_count", "Page count", 2},
	{[]string{"size", "large", "small"}, "metadata.size_bytes", "Size", 2},
	{[]string{"signer", "signers", "recipient"}, "metadata.signer_count", "Signer count", 2},
}

// SuggestFacets 根据查询文本推荐值得展示的分面
//
// 只推荐基础分面之外的字段，按优先级降序返回。
func (s *facetService) SuggestFacets(query string, entityTypes []string) []model.FacetSuggestion {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	baseline := make(map[string]bool, len(model.DefaultFacetFields))
	for _, f := range model.DefaultFacetFields {
		baseline[f] = true
	}

	var suggestions []model.FacetSuggestion
	seen := make(map[string]bool)
	for _, hint := range facetKeywordHints {
		if baseline[hint.field] || seen[hint.field] {
			continue
		}
		for _, kw := range hint.keywords {
			if tokenSet[kw] {
				suggestions = append(suggestions, model.FacetSuggestion{
					Field:    hint.field,
					Label:    hint.label,
					Priority: hint.priority,
				})
				seen[hint.field] = true
				break
			}
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Priority > suggestions[j].Priority
	})
	return suggestions
}
