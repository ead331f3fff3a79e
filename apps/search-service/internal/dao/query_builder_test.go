package dao

import (
	"testing"

	"opensign/apps/search-service/internal/model"
)

func boolPart(t *testing.T, query map[string]interface{}, part string) []interface{} {
	t.Helper()
	boolQuery, ok := query["bool"].(map[string]interface{})
	if !ok {
		t.Fatalf("query missing bool clause: %+v", query)
	}
	clauses, _ := boolQuery[part].([]interface{})
	return clauses
}

func hasTermClause(clauses []interface{}, field string, value interface{}) bool {
	for _, c := range clauses {
		m, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		term, ok := m["term"].(map[string]interface{})
		if !ok {
			continue
		}
		if v, ok := term[field]; ok && v == value {
			return true
		}
	}
	return false
}

func TestBuildSearchQueryAlwaysFiltersOrganization(t *testing.T) {
	d := &elasticsearchDAO{}

	queries := []*model.SearchQuery{
		{},
		{Query: "contract"},
		{Query: "contract", EntityTypes: []string{model.EntityTypeDocument}},
	}

	for i, q := range queries {
		built := d.buildSearchQuery(q, "org-1", "")
		must := boolPart(t, built, "must")
		if !hasTermClause(must, model.FieldOrgID, "org-1") {
			t.Errorf("case %d: query must clause missing organization term: %+v", i, must)
		}
	}
}

func TestBuildSearchQueryBrowseMode(t *testing.T) {
	d := &elasticsearchDAO{}

	built := d.buildSearchQuery(&model.SearchQuery{}, "org-1", "")
	must := boolPart(t, built, "must")

	foundMatchAll := false
	for _, c := range must {
		if m, ok := c.(map[string]interface{}); ok {
			if _, ok := m["match_all"]; ok {
				foundMatchAll = true
			}
		}
	}
	if !foundMatchAll {
		t.Error("empty query should produce match_all browse query")
	}
}

func TestBuildSearchQueryPermissionClause(t *testing.T) {
	d := &elasticsearchDAO{}

	// 无用户身份时不加权限过滤（服务间索引调用）
	built := d.buildSearchQuery(&model.SearchQuery{Query: "x"}, "org-1", "")
	for _, c := range boolPart(t, built, "filter") {
		if m, ok := c.(map[string]interface{}); ok {
			if _, ok := m["bool"]; ok {
				t.Error("permission clause present without user identity")
			}
		}
	}

	// 有用户身份时权限过滤是强制的
	built = d.buildSearchQuery(&model.SearchQuery{Query: "x"}, "org-1", "u1")
	var perm map[string]interface{}
	for _, c := range boolPart(t, built, "filter") {
		if m, ok := c.(map[string]interface{}); ok {
			if inner, ok := m["bool"].(map[string]interface{}); ok {
				perm = inner
			}
		}
	}
	if perm == nil {
		t.Fatal("permission clause missing for user search")
	}
	if perm["minimum_should_match"] != 1 {
		t.Errorf("minimum_should_match = %v, want 1", perm["minimum_should_match"])
	}
	should, _ := perm["should"].([]interface{})
	if !hasTermClause(should, "permissions", model.PermissionPublic) {
		t.Error("permission clause should allow public documents")
	}
	if !hasTermClause(should, "permissions", model.PermissionUserPrefix+"u1") {
		t.Error("permission clause should allow user grants")
	}
	if !hasTermClause(should, "permissions", model.PermissionOrgPrefix+"org-1") {
		t.Error("permission clause should allow organization grants")
	}
	if !hasTermClause(should, model.FieldUserID, "u1") {
		t.Error("permission clause should allow document owner")
	}
}

func TestBuildFilterClauses(t *testing.T) {
	clauses := buildFilterClauses(map[string]model.QueryFilter{
		"status":    model.TermFilter("pending"),
		"file_type": model.TermsFilter("pdf", "docx"),
		"pages":     model.RangeFilter(10, nil),
		"broken":    {Kind: model.FilterKindRange},
	})

	var terms, termsList, ranges int
	for _, c := range clauses {
		m := c.(map[string]interface{})
		if _, ok := m["term"]; ok {
			terms++
		}
		if _, ok := m["terms"]; ok {
			termsList++
		}
		if r, ok := m["range"]; ok {
			ranges++
			bounds := r.(map[string]interface{})["pages"].(map[string]interface{})
			if _, ok := bounds["lte"]; ok {
				t.Error("open-ended range should omit lte")
			}
			if bounds["gte"] != 10 {
				t.Errorf("range gte = %v, want 10", bounds["gte"])
			}
		}
	}
	if terms != 1 || termsList != 1 || ranges != 1 {
		t.Errorf("clause counts term=%d terms=%d range=%d, want 1 each (broken range dropped)", terms, termsList, ranges)
	}
}

func TestBuildSortQuery(t *testing.T) {
	d := &elasticsearchDAO{}

	// 默认：相关性优先、更新时间次之
	sorts := d.buildSortQuery(nil)
	if len(sorts) != 2 {
		t.Fatalf("default sort count = %d, want 2", len(sorts))
	}
	if _, ok := sorts[0]["_score"]; !ok {
		t.Error("default sort should lead with _score")
	}
	if _, ok := sorts[1][model.FieldUpdatedAt]; !ok {
		t.Error("default sort should fall back to updated_at")
	}

	// 标题排序改用keyword子字段
	sorts = d.buildSortQuery(&model.SortOption{Field: model.SortByTitle, Order: model.SortOrderAsc})
	if _, ok := sorts[0]["title.keyword"]; !ok {
		t.Errorf("title sort = %+v, want title.keyword", sorts[0])
	}
}

func TestBuildAggregations(t *testing.T) {
	d := &elasticsearchDAO{}

	aggs := d.buildAggregations([]model.FacetConfig{
		model.NewFacetConfig(model.FieldEntityType),
		model.NewFacetConfig(model.FieldCreatedAt),
		model.NewFacetConfig("metadata.page_count"),
		model.NewFacetConfig("metadata.category"),
	})

	if agg, ok := aggs[model.FieldEntityType].(map[string]interface{}); !ok {
		t.Error("entity_type aggregation missing")
	} else if _, ok := agg["terms"]; !ok {
		t.Error("entity_type should be a terms aggregation")
	}

	if agg, ok := aggs[model.FieldCreatedAt].(map[string]interface{}); !ok {
		t.Error("created_at aggregation missing")
	} else if _, ok := agg["date_histogram"]; !ok {
		t.Error("created_at should be a date_histogram aggregation")
	}

	if agg, ok := aggs["metadata.page_count"].(map[string]interface{}); !ok {
		t.Error("page_count aggregation missing")
	} else if h, ok := agg["histogram"].(map[string]interface{}); !ok {
		t.Error("page_count should be a histogram aggregation")
	} else if h["interval"] != 10.0 {
		t.Errorf("page_count interval = %v, want 10", h["interval"])
	}

	// 层级字段平铺桶要留出重组余量
	if agg := aggs["metadata.category"].(map[string]interface{}); agg["terms"].(map[string]interface{})["size"] != model.DefaultFacetMaxBuckets*2 {
		t.Errorf("hierarchical size = %v, want doubled", agg["terms"].(map[string]interface{})["size"])
	}

	if d.buildAggregations(nil) != nil {
		t.Error("no facets should produce no aggregations")
	}
}

func TestExtractAggBuckets(t *testing.T) {
	agg := map[string]interface{}{
		"buckets": []interface{}{
			map[string]interface{}{"key": "document", "doc_count": float64(12)},
			map[string]interface{}{"key": float64(10), "doc_count": float64(3)},
			map[string]interface{}{"key": float64(1700000000000), "key_as_string": "2023-11-14", "doc_count": float64(5)},
		},
	}

	buckets := ExtractAggBuckets(agg)
	if len(buckets) != 3 {
		t.Fatalf("bucket count = %d, want 3", len(buckets))
	}
	if buckets[0].Key != "document" || buckets[0].Count != 12 {
		t.Errorf("bucket[0] = %+v", buckets[0])
	}
	if buckets[1].Key != "10" {
		t.Errorf("numeric key = %q, want 10", buckets[1].Key)
	}
	if buckets[2].Key != "2023-11-14" {
		t.Errorf("date key = %q, want key_as_string preferred", buckets[2].Key)
	}

	if ExtractAggBuckets("not an object") != nil {
		t.Error("malformed aggregation should yield nil")
	}
}
