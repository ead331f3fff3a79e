package model

import (
	"testing"
)

func TestParseFilters(t *testing.T) {
	raw := map[string]interface{}{
		"status":    "pending",
		"file_type": []interface{}{"pdf", "docx"},
		"size":      map[string]interface{}{"gte": 100, "lte": 200},
		"bad":       map[string]interface{}{"unexpected": true},
		"empty":     nil,
	}

	filters := ParseFilters(raw)

	if f, ok := filters["status"]; !ok || f.Kind != FilterKindTerm || f.Value != "pending" {
		t.Errorf("status filter = %+v, want term pending", filters["status"])
	}
	if f, ok := filters["file_type"]; !ok || f.Kind != FilterKindTerms || len(f.Values) != 2 {
		t.Errorf("file_type filter = %+v, want terms with 2 values", filters["file_type"])
	}
	if f, ok := filters["size"]; !ok || f.Kind != FilterKindRange || f.Range == nil {
		t.Errorf("size filter = %+v, want range", filters["size"])
	}
	if _, ok := filters["bad"]; ok {
		t.Error("filter with unrecognized object shape should be dropped")
	}
	if _, ok := filters["empty"]; ok {
		t.Error("nil filter value should be dropped")
	}
}

func TestParseFiltersEmpty(t *testing.T) {
	if got := ParseFilters(nil); got != nil {
		t.Errorf("ParseFilters(nil) = %v, want nil", got)
	}
	if got := ParseFilters(map[string]interface{}{}); got != nil {
		t.Errorf("ParseFilters(empty) = %v, want nil", got)
	}
}

func TestSearchQueryNormalize(t *testing.T) {
	tests := []struct {
		name      string
		page      int
		limit     int
		wantPage  int
		wantLimit int
	}{
		{"defaults", 0, 0, 1, DefaultPageSize},
		{"negative page", -3, 10, 1, 10},
		{"limit above max", 1, 500, 1, MaxPageSize},
		{"limit below min", 2, -1, 2, DefaultPageSize},
		{"valid", 3, 50, 3, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &SearchQuery{Pagination: Pagination{Page: tt.page, Limit: tt.limit}}
			q.Normalize()
			if q.Pagination.Page != tt.wantPage {
				t.Errorf("page = %d, want %d", q.Pagination.Page, tt.wantPage)
			}
			if q.Pagination.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", q.Pagination.Limit, tt.wantLimit)
			}
		})
	}
}

func TestSearchQueryNormalizeKeepsOriginalQuery(t *testing.T) {
	q := &SearchQuery{Query: "contrct renewal"}
	q.Normalize()
	if q.OriginalQuery != "contrct renewal" {
		t.Errorf("OriginalQuery = %q, want original text preserved", q.OriginalQuery)
	}

	// 已保留的原始文本不被二次规范化覆盖
	q.Query = "contract renewal"
	q.Normalize()
	if q.OriginalQuery != "contrct renewal" {
		t.Errorf("OriginalQuery = %q, want unchanged after requery", q.OriginalQuery)
	}
}

func TestSearchQueryValidate(t *testing.T) {
	long := make([]byte, MaxQueryLength+1)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name    string
		query   SearchQuery
		wantErr bool
	}{
		{"empty query is browse mode", SearchQuery{}, false},
		{"too long", SearchQuery{Query: string(long)}, true},
		{"bad entity type", SearchQuery{EntityTypes: []string{"spreadsheet"}}, true},
		{"good entity types", SearchQuery{EntityTypes: []string{EntityTypeDocument, EntityTypeTemplate}}, false},
		{"bad sort field", SearchQuery{Sort: &SortOption{Field: "nonsense"}}, true},
		{"bad sort order", SearchQuery{Sort: &SortOption{Field: SortByTitle, Order: "sideways"}}, true},
		{"good sort", SearchQuery{Sort: &SortOption{Field: SortByCreated, Order: SortOrderDesc}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHasFilterValue(t *testing.T) {
	q := &SearchQuery{Filters: map[string]QueryFilter{
		"status":    TermFilter("pending"),
		"file_type": TermsFilter("pdf", "docx"),
		"size":      RangeFilter(0, 100),
	}}

	if !q.HasFilterValue("status", "pending") {
		t.Error("term filter should match its value")
	}
	if !q.HasFilterValue("file_type", "docx") {
		t.Error("terms filter should match a member value")
	}
	if q.HasFilterValue("file_type", "txt") {
		t.Error("terms filter should not match absent value")
	}
	if q.HasFilterValue("size", "50") {
		t.Error("range filter never matches a bucket key")
	}
	if q.HasFilterValue("missing", "x") {
		t.Error("absent field should not match")
	}
}

func TestSearchDocumentValidate(t *testing.T) {
	doc := &SearchDocument{ID: "doc-1", EntityType: EntityTypeDocument, OrganizationID: "org-1"}
	if err := doc.Validate(); err != nil {
		t.Errorf("valid document rejected: %v", err)
	}

	bad := []*SearchDocument{
		{EntityType: EntityTypeDocument, OrganizationID: "org-1"},
		{ID: "doc-1", EntityType: EntityTypeDocument},
		{ID: "doc-1", EntityType: "unknown", OrganizationID: "org-1"},
	}
	for i, d := range bad {
		if err := d.Validate(); err == nil {
			t.Errorf("case %d: invalid document accepted", i)
		}
	}
}

func TestSearchDocumentVisibleTo(t *testing.T) {
	doc := &SearchDocument{
		ID:             "doc-1",
		UserID:         "owner",
		OrganizationID: "org-1",
		Permissions:    []string{PermissionUserPrefix + "alice", PermissionOrgPrefix + "org-2"},
	}

	if !doc.VisibleTo("owner", "org-1") {
		t.Error("owner should see own document")
	}
	if !doc.VisibleTo("alice", "org-1") {
		t.Error("explicitly granted user should see document")
	}
	if !doc.VisibleTo("bob", "org-2") {
		t.Error("org grant should apply to org members")
	}
	if doc.VisibleTo("bob", "org-1") {
		t.Error("ungranted user should not see document")
	}

	public := &SearchDocument{ID: "doc-2", Permissions: []string{PermissionPublic}}
	if !public.VisibleTo("anyone", "any-org") {
		t.Error("public document should be visible to everyone")
	}
}

func TestNewFacetConfig(t *testing.T) {
	if cfg := NewFacetConfig(FieldCreatedAt); cfg.Type != FacetTypeDateHistogram || cfg.Interval != "month" {
		t.Errorf("created_at facet = %+v, want monthly date histogram", cfg)
	}
	if cfg := NewFacetConfig("metadata.page_count"); cfg.Type != FacetTypeRange || cfg.Step != 10 {
		t.Errorf("page_count facet = %+v, want range with step 10", cfg)
	}
	if cfg := NewFacetConfig("metadata.category"); !cfg.Hierarchical {
		t.Errorf("category facet = %+v, want hierarchical", cfg)
	}
	if cfg := NewFacetConfig(FieldTags); cfg.Type != FacetTypeTerms {
		t.Errorf("tags facet = %+v, want terms", cfg)
	}
}

func TestProfileHelpers(t *testing.T) {
	p := DefaultProfile("u1", "org-1")

	for i := 0; i < 60; i++ {
		p.RecordSearch("query")
	}
	if len(p.SearchHistory) != 50 {
		t.Errorf("history length = %d, want capped at 50", len(p.SearchHistory))
	}

	p.RecordClick("doc-1")
	p.RecordClick("doc-1")
	if p.ClickCounts["doc-1"] != 2 {
		t.Errorf("click count = %d, want 2", p.ClickCounts["doc-1"])
	}

	p.Collaborators = []string{"u2"}
	if !p.IsCollaborator("u2") || p.IsCollaborator("u3") {
		t.Error("IsCollaborator mismatch")
	}

	p.PreferredEntityTypes = []string{EntityTypeTemplate}
	if !p.PrefersEntityType(EntityTypeTemplate) || p.PrefersEntityType(EntityTypeDocument) {
		t.Error("PrefersEntityType mismatch")
	}
}
