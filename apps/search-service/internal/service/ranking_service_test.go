package service

import (
	"testing"
	"time"

	"opensign/apps/search-service/internal/model"
)

func newTestRankingService(config *ServiceConfig) RankingService {
	if config == nil {
		config = DefaultServiceConfig()
	}
	return NewRankingService(config, nopLogger{})
}

func rankedIDs(docs []*model.SearchDocument) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}

func TestRecencyScore(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	if got := recencyScore(time.Time{}, now); got != 0 {
		t.Errorf("zero time should score 0, got %f", got)
	}
	if got := recencyScore(now.Add(time.Hour), now); got != 0 {
		t.Errorf("future time should score 0, got %f", got)
	}
	if got := recencyScore(now, now); got != 1 {
		t.Errorf("just-updated document should score 1, got %f", got)
	}
	// 30天前衰减到一半
	if got := recencyScore(now.AddDate(0, 0, -30), now); got != 0.5 {
		t.Errorf("30-day-old document should score 0.5, got %f", got)
	}
	older := recencyScore(now.AddDate(0, 0, -90), now)
	newer := recencyScore(now.AddDate(0, 0, -10), now)
	if older >= newer {
		t.Errorf("older document must not outscore newer: %f >= %f", older, newer)
	}
}

func TestRankIsDeterministic(t *testing.T) {
	svc := newTestRankingService(nil)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	build := func() []*model.SearchDocument {
		return []*model.SearchDocument{
			{ID: "a", Title: "vendor contract", UpdatedAt: now.AddDate(0, 0, -5), Score: &model.SearchScore{TextMatch: 1.0}},
			{ID: "b", Title: "office lease", UpdatedAt: now.AddDate(0, 0, -60), Score: &model.SearchScore{TextMatch: 1.2}},
		}
	}
	query := &model.SearchQuery{Query: "vendor contract"}

	first := rankedIDs(svc.Rank(build(), query, nil, now))
	second := rankedIDs(svc.Rank(build(), query, nil, now))
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("same input must rank identically: %v vs %v", first, second)
		}
	}
}

func TestRankStableOnEqualScores(t *testing.T) {
	svc := newTestRankingService(nil)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	docs := []*model.SearchDocument{
		{ID: "first", UpdatedAt: now, Score: &model.SearchScore{TextMatch: 1.0}},
		{ID: "second", UpdatedAt: now, Score: &model.SearchScore{TextMatch: 1.0}},
		{ID: "third", UpdatedAt: now, Score: &model.SearchScore{TextMatch: 1.0}},
	}

	got := rankedIDs(svc.Rank(docs, &model.SearchQuery{}, nil, now))
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("equal scores must preserve engine order, got %v", got)
		}
	}
}

func TestRankPersonalizationBoostsClickedDocument(t *testing.T) {
	svc := newTestRankingService(nil)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	profile := model.DefaultProfile("u1", "org1")
	profile.ClickCounts["b"] = 5

	docs := []*model.SearchDocument{
		{ID: "a", UpdatedAt: now, Score: &model.SearchScore{TextMatch: 1.0}},
		{ID: "b", UpdatedAt: now, Score: &model.SearchScore{TextMatch: 1.0}},
	}

	got := rankedIDs(svc.Rank(docs, &model.SearchQuery{}, profile, now))
	if got[0] != "b" {
		t.Errorf("clicked document should rank first, got %v", got)
	}
	if docs[0].Score.Personalization != 0.5 {
		t.Errorf("personalization = %f, want 5 clicks * 0.1", docs[0].Score.Personalization)
	}
}

func TestRankClickBoostCapped(t *testing.T) {
	svc := newTestRankingService(nil)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	profile := model.DefaultProfile("u1", "org1")
	profile.ClickCounts["a"] = 100

	docs := []*model.SearchDocument{
		{ID: "a", UpdatedAt: now, Score: &model.SearchScore{TextMatch: 1.0}},
	}
	svc.Rank(docs, &model.SearchQuery{}, profile, now)

	if docs[0].Score.Personalization != 1.0 {
		t.Errorf("click boost should cap at 1.0, got %f", docs[0].Score.Personalization)
	}
}

func TestRankPersonalizationSignals(t *testing.T) {
	svc := newTestRankingService(nil)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	profile := model.DefaultProfile("u1", "org1")
	profile.Collaborators = []string{"owner-1"}
	profile.RecentDocuments = []string{"doc-1"}
	profile.PreferredEntityTypes = []string{model.EntityTypeTemplate}

	docs := []*model.SearchDocument{
		{
			ID:         "doc-1",
			UserID:     "owner-1",
			EntityType: model.EntityTypeTemplate,
			UpdatedAt:  now,
			Score:      &model.SearchScore{TextMatch: 1.0},
		},
	}
	svc.Rank(docs, &model.SearchQuery{}, profile, now)

	// 协作者0.3 + 近期文档0.5 + 偏好类型0.2
	if docs[0].Score.Personalization != 1.0 {
		t.Errorf("personalization = %f, want 1.0", docs[0].Score.Personalization)
	}
}

func TestRankSemanticMatchesContent(t *testing.T) {
	config := DefaultServiceConfig()
	config.EnablePersonalization = false
	svc := newTestRankingService(config)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	docs := []*model.SearchDocument{
		{ID: "a", Title: "untitled", UpdatedAt: now, Score: &model.SearchScore{TextMatch: 1.0}},
		{ID: "b", Title: "untitled", Content: "vendor contract terms", UpdatedAt: now, Score: &model.SearchScore{TextMatch: 1.0}},
	}

	got := rankedIDs(svc.Rank(docs, &model.SearchQuery{Query: "vendor contract"}, nil, now))
	// 正文命中查询词的文档排到前面
	if got[0] != "b" {
		t.Errorf("document matching in content should rank first, got %v", got)
	}
	if docs[0].Score.FieldMatch <= docs[1].Score.FieldMatch {
		t.Errorf("content match should raise the semantic score: %f <= %f",
			docs[0].Score.FieldMatch, docs[1].Score.FieldMatch)
	}
}

func TestRankSemanticDisabled(t *testing.T) {
	config := DefaultServiceConfig()
	config.EnableSemanticRanking = false
	config.EnablePersonalization = false
	svc := newTestRankingService(config)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	docs := []*model.SearchDocument{
		{ID: "a", Title: "vendor contract", UpdatedAt: now, Score: &model.SearchScore{TextMatch: 1.0}},
	}
	profile := model.DefaultProfile("u1", "org1")
	profile.ClickCounts["a"] = 10

	svc.Rank(docs, &model.SearchQuery{Query: "vendor contract"}, profile, now)

	if docs[0].Score.FieldMatch != 0 || docs[0].Score.Personalization != 0 {
		t.Errorf("disabled stages must not contribute: %+v", docs[0].Score)
	}
	// 总分 = 文本相关性 + 新近度*0.1
	want := 1.0 + 1.0*0.1
	if docs[0].Score.Total != want {
		t.Errorf("total = %f, want %f", docs[0].Score.Total, want)
	}
}

func TestRankNilScoreInitialized(t *testing.T) {
	svc := newTestRankingService(nil)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	docs := []*model.SearchDocument{{ID: "a", UpdatedAt: now}}
	svc.Rank(docs, &model.SearchQuery{}, nil, now)

	if docs[0].Score == nil {
		t.Fatal("score should be initialized for documents without one")
	}
}
