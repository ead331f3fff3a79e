package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"opensign/apps/search-service/internal/model"
)

func newTestEnhancementService(config *ServiceConfig) EnhancementService {
	if config == nil {
		config = DefaultServiceConfig()
	}
	return NewEnhancementService(config, nopLogger{})
}

func TestRecognizeIntent(t *testing.T) {
	svc := newTestEnhancementService(nil)

	tests := []struct {
		name           string
		query          string
		wantType       string
		wantConfidence float64
		wantEntityType string
		wantEntity     string
	}{
		{"template", "invoice template", model.IntentFindTemplate, 0.85, "", ""},
		{"recent", "latest documents", model.IntentFindRecent, 0.8, "time_range", "latest"},
		{"author", "signed by john smith", model.IntentFindByAuthor, 0.75, "person", "john smith"},
		{"type plural normalized", "vendor invoices", model.IntentFindByType, 0.7, "document_type", "invoice"},
		{"no pattern", "quarterly review", model.IntentFindDocument, 0.4, "", ""},
		{"empty", "", model.IntentUnknown, 0, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := svc.RecognizeIntent(tt.query)
			if intent.Type != tt.wantType {
				t.Errorf("intent type = %q, want %q", intent.Type, tt.wantType)
			}
			if intent.Confidence != tt.wantConfidence {
				t.Errorf("confidence = %f, want %f", intent.Confidence, tt.wantConfidence)
			}
			if tt.wantEntityType != "" {
				if got := intent.Entity(tt.wantEntityType); got != tt.wantEntity {
					t.Errorf("entity %q = %q, want %q", tt.wantEntityType, got, tt.wantEntity)
				}
			}
		})
	}
}

func TestEnhanceAppliesTemplateIntent(t *testing.T) {
	svc := newTestEnhancementService(nil)
	query := &model.SearchQuery{Query: "nda template"}

	svc.Enhance(context.Background(), query, nil)

	if len(query.EntityTypes) != 1 || query.EntityTypes[0] != model.EntityTypeTemplate {
		t.Errorf("entity types = %v, want [%s]", query.EntityTypes, model.EntityTypeTemplate)
	}
}

func TestEnhanceTemplateIntentKeepsExplicitEntityTypes(t *testing.T) {
	svc := newTestEnhancementService(nil)
	query := &model.SearchQuery{
		Query:       "nda template",
		EntityTypes: []string{model.EntityTypeDocument},
	}

	svc.Enhance(context.Background(), query, nil)

	if len(query.EntityTypes) != 1 || query.EntityTypes[0] != model.EntityTypeDocument {
		t.Errorf("explicit entity types must not be overwritten, got %v", query.EntityTypes)
	}
}

func TestEnhanceAppliesRecentIntent(t *testing.T) {
	svc := newTestEnhancementService(nil)
	query := &model.SearchQuery{Query: "recent proposals"}

	svc.Enhance(context.Background(), query, nil)

	if query.Sort == nil || query.Sort.Field != model.SortByCreated || query.Sort.Order != model.SortOrderDesc {
		t.Fatalf("recent intent should set descending created sort, got %+v", query.Sort)
	}
	filter, ok := query.Filters[model.FieldCreatedAt]
	if !ok {
		t.Fatal("recent intent should add a created_at range filter")
	}
	if filter.Range == nil || filter.Range.GTE == nil {
		t.Errorf("created_at filter should have a lower bound, got %+v", filter)
	}
}

func TestEnhanceAppliesAuthorIntent(t *testing.T) {
	svc := newTestEnhancementService(nil)
	query := &model.SearchQuery{Query: "contracts from alice"}

	svc.Enhance(context.Background(), query, nil)

	filter, ok := query.Filters["metadata.author"]
	if !ok {
		t.Fatal("author intent should add metadata.author filter")
	}
	if filter.Value != "alice" {
		t.Errorf("author filter value = %v, want alice", filter.Value)
	}
}

func TestEnhanceExpansionNeverNarrows(t *testing.T) {
	svc := newTestEnhancementService(nil)
	query := &model.SearchQuery{Query: "vendor agreement"}

	svc.Enhance(context.Background(), query, nil)

	// 原词必须全部保留，扩展词只追加
	for _, word := range []string{"vendor", "agreement", "contract"} {
		if !strings.Contains(query.Query, word) {
			t.Errorf("expanded query %q missing %q", query.Query, word)
		}
	}
}

func TestEnhanceExpansionAppendsStems(t *testing.T) {
	svc := newTestEnhancementService(nil)
	query := &model.SearchQuery{Query: "pending archived"}

	svc.Enhance(context.Background(), query, nil)

	words := strings.Fields(query.Query)
	if len(words) < 2 || words[0] != "pending" || words[1] != "archived" {
		t.Fatalf("original tokens must stay in place, got %q", query.Query)
	}
	// 词干与原词不同时作为扩展词追加
	for _, stem := range []string{"pend", "archiv"} {
		found := false
		for _, w := range words {
			if w == stem {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expanded query %q missing stem %q", query.Query, stem)
		}
	}
}

func TestEnhanceExpansionCapped(t *testing.T) {
	svc := newTestEnhancementService(nil)
	query := &model.SearchQuery{Query: "contract sign doc envelope folder nda invoice"}

	svc.Enhance(context.Background(), query, nil)

	words := strings.Fields(query.Query)
	if len(words) != 7+maxQueryExpansions {
		t.Fatalf("expansions must be capped at %d, got %d words: %q",
			maxQueryExpansions, len(words), query.Query)
	}
	// 超出上限的同义词不再追加
	for _, w := range words {
		if w == "bill" || w == "nondisclosure" {
			t.Errorf("expanded query %q should have dropped %q at the cap", query.Query, w)
		}
	}
}

func TestEnhanceExpansionSkipsPresentSynonyms(t *testing.T) {
	svc := newTestEnhancementService(nil)
	query := &model.SearchQuery{Query: "contract agreement"}

	svc.Enhance(context.Background(), query, nil)

	if query.Query != "contract agreement" {
		t.Errorf("query with synonyms already present should be unchanged, got %q", query.Query)
	}
}

func TestEnhanceSpellCorrection(t *testing.T) {
	svc := newTestEnhancementService(nil)
	query := &model.SearchQuery{Query: "documant"}

	svc.Enhance(context.Background(), query, nil)

	if !strings.Contains(query.Query, "document") {
		t.Errorf("misspelled query should be corrected, got %q", query.Query)
	}
}

func TestEnhanceAllStagesDisabled(t *testing.T) {
	config := DefaultServiceConfig()
	config.EnableIntentRecognition = false
	config.EnableSpellCorrection = false
	config.EnableQueryExpansion = false
	config.EnablePersonalization = false
	svc := newTestEnhancementService(config)

	profile := model.DefaultProfile("u1", "org1")
	profile.FacetOrder = []string{"status"}
	query := &model.SearchQuery{Query: "recent contrct templates"}

	svc.Enhance(context.Background(), query, profile)

	if query.Query != "recent contrct templates" {
		t.Errorf("disabled pipeline must not touch the query, got %q", query.Query)
	}
	if len(query.EntityTypes) != 0 || query.Sort != nil || len(query.Facets) != 0 {
		t.Errorf("disabled pipeline must not add conditions: %+v", query)
	}
}

func TestEnhanceProfileDefaults(t *testing.T) {
	svc := newTestEnhancementService(nil)
	profile := model.DefaultProfile("u1", "org1")
	profile.PreferredEntityTypes = []string{model.EntityTypeDocument, "bogus"}
	profile.PreferredSortField = model.SortByUpdated
	profile.PreferredSortOrder = model.SortOrderAsc
	profile.FacetOrder = []string{"status", "entity_type"}

	query := &model.SearchQuery{Query: "quarterly review"}
	svc.Enhance(context.Background(), query, profile)
	if len(query.Facets) != 2 {
		t.Errorf("profile facet order should fill unset facets, got %v", query.Facets)
	}
	// 非法实体类型被忽略，合法的填入
	if len(query.EntityTypes) != 1 || query.EntityTypes[0] != model.EntityTypeDocument {
		t.Errorf("profile entity types should fill unset entity types, got %v", query.EntityTypes)
	}
	if query.Sort == nil || query.Sort.Field != model.SortByUpdated || query.Sort.Order != model.SortOrderAsc {
		t.Errorf("profile sort preference should fill unset sort, got %+v", query.Sort)
	}

	explicit := &model.SearchQuery{
		Query:       "quarterly review",
		EntityTypes: []string{model.EntityTypeTemplate},
		Sort:        &model.SortOption{Field: model.SortByTitle, Order: model.SortOrderDesc},
		Facets:      []string{"tags"},
	}
	svc.Enhance(context.Background(), explicit, profile)
	if len(explicit.Facets) != 1 || explicit.Facets[0] != "tags" {
		t.Errorf("explicit facets must not be overwritten, got %v", explicit.Facets)
	}
	if len(explicit.EntityTypes) != 1 || explicit.EntityTypes[0] != model.EntityTypeTemplate {
		t.Errorf("explicit entity types must not be overwritten, got %v", explicit.EntityTypes)
	}
	if explicit.Sort.Field != model.SortByTitle {
		t.Errorf("explicit sort must not be overwritten, got %+v", explicit.Sort)
	}
}

func TestEnhanceProfileDefaultsInvalidSortField(t *testing.T) {
	svc := newTestEnhancementService(nil)
	profile := model.DefaultProfile("u1", "org1")
	profile.PreferredSortField = "not_a_field"

	query := &model.SearchQuery{Query: "quarterly review"}
	svc.Enhance(context.Background(), query, profile)
	if query.Sort != nil {
		t.Errorf("invalid profile sort field must be ignored, got %+v", query.Sort)
	}
}

func TestRecentSince(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		phrase string
		want   time.Time
	}{
		{"today", time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)},
		{"yesterday", time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)},
		{"this week", now.AddDate(0, 0, -7)},
		{"last week", now.AddDate(0, 0, -7)},
		{"this month", now.AddDate(0, -1, 0)},
		{"latest", now.Add(-24 * time.Hour)},
	}

	for _, tt := range tests {
		if got := recentSince(tt.phrase, now); !got.Equal(tt.want) {
			t.Errorf("recentSince(%q) = %v, want %v", tt.phrase, got, tt.want)
		}
	}
}

func TestNormalizeDocumentType(t *testing.T) {
	tests := []struct{ raw, want string }{
		{"contracts", "contract"},
		{"Invoice", "invoice"},
		{"NDAs", "nda"},
		{"nda", "nda"},
		{"proposals", "proposal"},
	}
	for _, tt := range tests {
		if got := normalizeDocumentType(tt.raw); got != tt.want {
			t.Errorf("normalizeDocumentType(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
