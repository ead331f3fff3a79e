package service

import (
	"context"
	"fmt"
	"testing"

	"opensign/apps/search-service/internal/model"
)

func newTestSuggestionService(searchDAO *fakeSearchDAO) SuggestionService {
	return NewSuggestionService(searchDAO, DefaultServiceConfig(), nopLogger{})
}

func TestCompleteShortPrefix(t *testing.T) {
	svc := newTestSuggestionService(newFakeSearchDAO())

	got, err := svc.Complete(context.Background(), "a", "org1", nil, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("prefix below minimum length should yield nil, got %+v", got)
	}
}

func TestCompleteMergesIndexAndHistory(t *testing.T) {
	searchDAO := newFakeSearchDAO()
	searchDAO.suggestions = []model.SearchSuggestion{
		{Text: "vendor contract 2025", Type: model.SuggestionTypeCompletion, Score: 0.8},
	}
	svc := newTestSuggestionService(searchDAO)

	profile := model.DefaultProfile("u1", "org1")
	profile.SearchHistory = []string{"vendor onboarding", "office lease"}

	got, err := svc.Complete(context.Background(), "vendor", "org1", profile, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("suggestions = %+v, want index hit plus history hit", got)
	}
	// 索引候选分数更高，排在前面
	if got[0].Text != "vendor contract 2025" || got[1].Text != "vendor onboarding" {
		t.Errorf("order = [%s %s], want index candidate first", got[0].Text, got[1].Text)
	}
}

func TestCompleteEngineFailureFallsBackToHistory(t *testing.T) {
	searchDAO := newFakeSearchDAO()
	searchDAO.suggestErr = fmt.Errorf("timeout")
	svc := newTestSuggestionService(searchDAO)

	profile := model.DefaultProfile("u1", "org1")
	profile.SearchHistory = []string{"vendor onboarding"}

	got, err := svc.Complete(context.Background(), "vendor", "org1", profile, 10)
	if err != nil {
		t.Fatalf("engine failure must not fail the call: %v", err)
	}
	if len(got) != 1 || got[0].Text != "vendor onboarding" {
		t.Errorf("suggestions = %+v, want history fallback", got)
	}
}

func TestCompleteDeduplicates(t *testing.T) {
	searchDAO := newFakeSearchDAO()
	searchDAO.suggestions = []model.SearchSuggestion{
		{Text: "Vendor Onboarding", Type: model.SuggestionTypeCompletion, Score: 0.8},
	}
	svc := newTestSuggestionService(searchDAO)

	profile := model.DefaultProfile("u1", "org1")
	profile.SearchHistory = []string{"vendor onboarding"}

	got, _ := svc.Complete(context.Background(), "vendor", "org1", profile, 10)
	if len(got) != 1 {
		t.Errorf("case-insensitive duplicates should collapse, got %+v", got)
	}
}

func TestCompleteRespectsLimit(t *testing.T) {
	searchDAO := newFakeSearchDAO()
	for i := 0; i < 8; i++ {
		searchDAO.suggestions = append(searchDAO.suggestions, model.SearchSuggestion{
			Text:  fmt.Sprintf("vendor doc %d", i),
			Type:  model.SuggestionTypeCompletion,
			Score: 0.8,
		})
	}
	svc := newTestSuggestionService(searchDAO)

	got, _ := svc.Complete(context.Background(), "vendor", "org1", nil, 3)
	if len(got) != 3 {
		t.Errorf("suggestions = %d, want limit 3", len(got))
	}
}

func TestForResultCorrection(t *testing.T) {
	svc := newTestSuggestionService(newFakeSearchDAO())

	query := &model.SearchQuery{Query: "document doc", OriginalQuery: "documant"}
	result := &model.SearchResult{}

	got := svc.ForResult(context.Background(), query, result, nil)
	if len(got) != 1 {
		t.Fatalf("suggestions = %+v, want single correction", got)
	}
	if got[0].Type != model.SuggestionTypeCorrection || got[0].Text != "document" {
		t.Errorf("correction = %+v, want document", got[0])
	}
	if got[0].Score != model.CorrectionScore {
		t.Errorf("correction score = %f, want %f", got[0].Score, model.CorrectionScore)
	}
}

func TestForResultNoCorrectionForCleanQuery(t *testing.T) {
	svc := newTestSuggestionService(newFakeSearchDAO())

	query := &model.SearchQuery{Query: "contract", OriginalQuery: "contract"}
	got := svc.ForResult(context.Background(), query, &model.SearchResult{}, nil)
	for _, sg := range got {
		if sg.Type == model.SuggestionTypeCorrection {
			t.Errorf("correctly spelled query must not get a correction: %+v", sg)
		}
	}
}

func TestForResultRelatedAggregatesResultTags(t *testing.T) {
	svc := newTestSuggestionService(newFakeSearchDAO())

	query := &model.SearchQuery{Query: "contract", OriginalQuery: "contract"}
	result := &model.SearchResult{
		Documents: []*model.SearchDocument{
			{ID: "d1", Tags: []string{"contract", "legal", "vendor"}},
			{ID: "d2", Tags: []string{"legal", "q3"}},
			{ID: "d3", Tags: []string{"legal"}},
		},
	}

	got := svc.ForResult(context.Background(), query, result, nil)
	// 标签按全部结果的出现频次聚合，查询里已有的标签不推荐，
	// 建议文本为原查询加标签
	if len(got) != 3 {
		t.Fatalf("related = %+v, want 3 suggestions", got)
	}
	wantTexts := []string{"contract legal", "contract q3", "contract vendor"}
	for i, sg := range got {
		if sg.Text != wantTexts[i] {
			t.Errorf("suggestion[%d] = %q, want %q", i, sg.Text, wantTexts[i])
		}
		if sg.Type != model.SuggestionTypeRelated {
			t.Errorf("type = %q, want related", sg.Type)
		}
	}
}

func TestForResultRelatedTagsCapped(t *testing.T) {
	svc := newTestSuggestionService(newFakeSearchDAO())

	query := &model.SearchQuery{Query: "contract", OriginalQuery: "contract"}
	result := &model.SearchResult{
		Documents: []*model.SearchDocument{
			{ID: "d1", Tags: []string{"legal", "vendor", "q3", "finance", "archive"}},
		},
	}

	got := svc.ForResult(context.Background(), query, result, nil)
	if len(got) != 3 {
		t.Errorf("related suggestions should cap at 3, got %+v", got)
	}
}

func TestForResultRelatedFromHistory(t *testing.T) {
	svc := newTestSuggestionService(newFakeSearchDAO())

	profile := model.DefaultProfile("u1", "org1")
	profile.SearchHistory = []string{"vendor contracts", "office lease", "vendor contract"}

	query := &model.SearchQuery{Query: "vendor contract", OriginalQuery: "vendor contract"}
	got := svc.ForResult(context.Background(), query, &model.SearchResult{}, profile)

	// 与查询词干重叠的历史进入建议，当前查询本身排除
	if len(got) != 1 || got[0].Text != "vendor contracts" {
		t.Errorf("history suggestions = %+v, want [vendor contracts]", got)
	}
}
