package dao

import (
	"opensign/apps/search-service/internal/model"
)

// ============ 查询构建器 ============

// buildSearchQuery 构建布尔查询
//
// must 恒定携带组织过滤（租户硬隔离，任何查询不得跨租户）；
// 提供 userID 时权限子句是强制过滤而非可选加权。
func (d *elasticsearchDAO) buildSearchQuery(req *model.SearchQuery, organizationID, userID string) map[string]interface{} {
	must := []interface{}{
		map[string]interface{}{
			"term": map[string]interface{}{
				model.FieldOrgID: organizationID,
			},
		},
	}

	should := []interface{}{}

	// 主查询：加权多字段匹配 + 短语加分
	if req.Query != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query": req.Query,
				"fields": []string{
					"title^3",
					"content^1",
					"tags^2",
				},
				"type":      "best_fields",
				"fuzziness": "AUTO",
			},
		})

		// 精确短语命中排名更靠前
		should = append(should, map[string]interface{}{
			"match_phrase": map[string]interface{}{
				"title": map[string]interface{}{
					"query": req.Query,
					"boost": 2.0,
				},
			},
		})
	} else {
		// 浏览模式
		must = append(must, map[string]interface{}{
			"match_all": map[string]interface{}{},
		})
	}

	filter := []interface{}{}

	// 实体类型过滤
	if len(req.EntityTypes) > 0 {
		filter = append(filter, map[string]interface{}{
			"terms": map[string]interface{}{
				model.FieldEntityType: req.EntityTypes,
			},
		})
	}

	// 声明的过滤器
	filter = append(filter, buildFilterClauses(req.Filters)...)

	// 权限过滤：用户只能看到自己拥有、公开、或组织可见的文档
	if userID != "" {
		filter = append(filter, map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					map[string]interface{}{
						"term": map[string]interface{}{
							model.FieldUserID: userID,
						},
					},
					map[string]interface{}{
						"term": map[string]interface{}{
							"permissions": model.PermissionPublic,
						},
					},
					map[string]interface{}{
						"term": map[string]interface{}{
							"permissions": model.PermissionUserPrefix + userID,
						},
					},
					map[string]interface{}{
						"term": map[string]interface{}{
							"permissions": model.PermissionOrgPrefix + organizationID,
						},
					},
				},
				"minimum_should_match": 1,
			},
		})
	}

	boolQuery := map[string]interface{}{
		"must":   must,
		"filter": filter,
	}
	if len(should) > 0 {
		boolQuery["should"] = should
	}

	return map[string]interface{}{
		"bool": boolQuery,
	}
}

// buildFilterClauses 将类型化过滤器展开为引擎子句
func buildFilterClauses(filters map[string]model.QueryFilter) []interface{} {
	clauses := make([]interface{}, 0, len(filters))

	for field, f := range filters {
		switch f.Kind {
		case model.FilterKindTerm:
			clauses = append(clauses, map[string]interface{}{
				"term": map[string]interface{}{
					field: f.Value,
				},
			})
		case model.FilterKindTerms:
			clauses = append(clauses, map[string]interface{}{
				"terms": map[string]interface{}{
					field: f.Values,
				},
			})
		case model.FilterKindRange:
			if f.Range == nil {
				continue
			}
			bounds := map[string]interface{}{}
			if f.Range.GTE != nil {
				bounds["gte"] = f.Range.GTE
			}
			if f.Range.LTE != nil {
				bounds["lte"] = f.Range.LTE
			}
			clauses = append(clauses, map[string]interface{}{
				"range": map[string]interface{}{
					field: bounds,
				},
			})
		}
	}

	return clauses
}

// buildSortQuery 构建排序
//
// 未指定时默认相关性优先、时间次之。
func (d *elasticsearchDAO) buildSortQuery(sort *model.SortOption) []map[string]interface{} {
	if sort == nil || sort.Field == "" || sort.Field == model.SortByRelevance {
		order := model.SortOrderDesc
		if sort != nil && sort.Order != "" {
			order = sort.Order
		}
		return []map[string]interface{}{
			{"_score": map[string]interface{}{"order": order}},
			{model.FieldUpdatedAt: map[string]interface{}{"order": model.SortOrderDesc}},
		}
	}

	order := sort.Order
	if order == "" {
		order = model.SortOrderDesc
	}

	field := sort.Field
	if field == model.SortByTitle {
		field = "title.keyword"
	}

	return []map[string]interface{}{
		{field: map[string]interface{}{"order": order}},
	}
}

// buildHighlightQuery 构建高亮
func (d *elasticsearchDAO) buildHighlightQuery() map[string]interface{} {
	fields := map[string]interface{}{}
	for _, field := range []string{"title", "content", "tags"} {
		fields[field] = map[string]interface{}{
			"fragment_size":       150,
			"number_of_fragments": 3,
		}
	}

	return map[string]interface{}{
		"pre_tags":  []string{"<em>"},
		"post_tags": []string{"</em>"},
		"fields":    fields,
	}
}

// buildAggregations 由分面配置构建聚合请求
func (d *elasticsearchDAO) buildAggregations(facets []model.FacetConfig) map[string]interface{} {
	if len(facets) == 0 {
		return nil
	}

	aggs := make(map[string]interface{}, len(facets))
	for _, facet := range facets {
		switch facet.Type {
		case model.FacetTypeRange:
			// 直方图聚合，分面引擎再按 [min,max,step] 重新分桶
			interval := facet.Step
			if interval <= 0 {
				interval = 1
			}
			aggs[facet.Field] = map[string]interface{}{
				"histogram": map[string]interface{}{
					"field":    facet.Field,
					"interval": interval,
				},
			}
		case model.FacetTypeDateHistogram:
			interval := facet.Interval
			if interval == "" {
				interval = "month"
			}
			aggs[facet.Field] = map[string]interface{}{
				"date_histogram": map[string]interface{}{
					"field":             facet.Field,
					"calendar_interval": interval,
					"format":            "yyyy-MM-dd",
				},
			}
		default:
			size := facet.Size
			if size <= 0 {
				size = model.DefaultFacetMaxBuckets
			}
			if facet.Hierarchical {
				// 层级字段的平铺桶要留出重组余量
				size *= 2
			}
			aggs[facet.Field] = map[string]interface{}{
				"terms": map[string]interface{}{
					"field": facet.Field,
					"size":  size,
				},
			}
		}
	}

	return aggs
}

// buildIndexMapping 统一文档索引的映射
func buildIndexMapping() map[string]interface{} {
	return map[string]interface{}{
		"properties": map[string]interface{}{
			"id":              map[string]interface{}{"type": "keyword"},
			"entity_type":     map[string]interface{}{"type": "keyword"},
			"organization_id": map[string]interface{}{"type": "keyword"},
			"user_id":         map[string]interface{}{"type": "keyword"},
			"permissions":     map[string]interface{}{"type": "keyword"},
			"tags":            map[string]interface{}{"type": "keyword"},
			"title": map[string]interface{}{
				"type": "text",
				"fields": map[string]interface{}{
					"keyword": map[string]interface{}{
						"type":         "keyword",
						"ignore_above": 256,
					},
				},
			},
			"content":    map[string]interface{}{"type": "text"},
			"created_at": map[string]interface{}{"type": "date"},
			"updated_at": map[string]interface{}{"type": "date"},
			"metadata": map[string]interface{}{
				"properties": map[string]interface{}{
					"file_type":    map[string]interface{}{"type": "keyword"},
					"category":     map[string]interface{}{"type": "keyword"},
					"visibility":   map[string]interface{}{"type": "keyword"},
					"status":       map[string]interface{}{"type": "keyword"},
					"role":         map[string]interface{}{"type": "keyword"},
					"action":       map[string]interface{}{"type": "keyword"},
					"plan":         map[string]interface{}{"type": "keyword"},
					"folder_path":  map[string]interface{}{"type": "keyword"},
					"author":       map[string]interface{}{"type": "keyword"},
					"page_count":   map[string]interface{}{"type": "long"},
					"size_bytes":   map[string]interface{}{"type": "long"},
					"signer_count": map[string]interface{}{"type": "long"},
				},
			},
		},
	}
}

// buildIndexSettings 索引设置
func buildIndexSettings() map[string]interface{} {
	return map[string]interface{}{
		"number_of_shards":   1,
		"number_of_replicas": 1,
		"refresh_interval":   "1s",
	}
}
