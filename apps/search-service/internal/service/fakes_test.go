package service

import (
	"context"
	"fmt"
	"sync"

	"opensign/apps/search-service/internal/dao"
	"opensign/apps/search-service/internal/model"
	"opensign/pkg/logger"
)

// ============ 测试用替身 ============

// nopLogger 测试用空日志
type nopLogger struct{}

func (nopLogger) Info(ctx context.Context, msg string, fields ...logger.Field)  {}
func (nopLogger) Error(ctx context.Context, msg string, fields ...logger.Field) {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...logger.Field)  {}
func (nopLogger) Debug(ctx context.Context, msg string, fields ...logger.Field) {}
func (l nopLogger) WithContext(ctx context.Context) logger.Logger               { return l }

// fakeSearchDAO 搜索引擎替身
type fakeSearchDAO struct {
	searchResult *dao.RawSearchResult
	searchErr    error
	suggestions  []model.SearchSuggestion
	suggestErr   error
	bulkErrors   []dao.BulkItemError
	health       *dao.ClusterHealth
	doc          *model.SearchDocument

	indexed          []*model.SearchDocument
	deleted          []string
	lastQuery        *model.SearchQuery
	lastOrg          string
	lastUser         string
	searchCalls      int
	ensureIndexCalls int
	deleteIndexCalls int
}

func newFakeSearchDAO() *fakeSearchDAO {
	return &fakeSearchDAO{
		searchResult: &dao.RawSearchResult{Documents: []*model.SearchDocument{}},
		health:       &dao.ClusterHealth{Status: "green", Reachable: true},
	}
}

func (f *fakeSearchDAO) EnsureIndex(ctx context.Context, indexName string) error {
	f.ensureIndexCalls++
	return nil
}

func (f *fakeSearchDAO) IndexExists(ctx context.Context, indexName string) (bool, error) {
	return true, nil
}

func (f *fakeSearchDAO) DeleteIndex(ctx context.Context, indexName string) error {
	f.deleteIndexCalls++
	return nil
}

func (f *fakeSearchDAO) IndexDocument(ctx context.Context, doc *model.SearchDocument) error {
	f.indexed = append(f.indexed, doc)
	return nil
}

func (f *fakeSearchDAO) BulkIndexDocuments(ctx context.Context, docs []*model.SearchDocument) ([]dao.BulkItemError, error) {
	f.indexed = append(f.indexed, docs...)
	return f.bulkErrors, nil
}

func (f *fakeSearchDAO) DeleteDocument(ctx context.Context, id, entityType string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeSearchDAO) GetDocument(ctx context.Context, id string) (*model.SearchDocument, error) {
	if f.doc != nil && f.doc.ID == id {
		return f.doc, nil
	}
	return nil, dao.ErrDocumentNotFound
}

func (f *fakeSearchDAO) DeleteByOrganization(ctx context.Context, organizationID string) error {
	return nil
}

func (f *fakeSearchDAO) Search(ctx context.Context, query *model.SearchQuery, organizationID, userID string, facets []model.FacetConfig) (*dao.RawSearchResult, error) {
	f.lastQuery = query
	f.lastOrg = organizationID
	f.lastUser = userID
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResult, nil
}

func (f *fakeSearchDAO) SuggestCompletions(ctx context.Context, prefix, organizationID string, limit int) ([]model.SearchSuggestion, error) {
	if f.suggestErr != nil {
		return nil, f.suggestErr
	}
	return f.suggestions, nil
}

func (f *fakeSearchDAO) GetClusterHealth(ctx context.Context) *dao.ClusterHealth { return f.health }

func (f *fakeSearchDAO) GetIndexStats(ctx context.Context, indexName string) (*dao.IndexStats, error) {
	return &dao.IndexStats{DocumentCount: 10, SizeBytes: 1024}, nil
}

func (f *fakeSearchDAO) Ping(ctx context.Context) error { return nil }

// fakeAnalyticsDAO 分析存储替身
type fakeAnalyticsDAO struct {
	mu          sync.Mutex
	saved       []*model.SearchAnalyticsEvent
	clicks      []*model.SearchClickEvent
	saveErr     error
	saveErrOnce bool
	events      []*model.SearchAnalyticsEvent
	pingErr     error
}

func (f *fakeAnalyticsDAO) SaveEvents(ctx context.Context, events []*model.SearchAnalyticsEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		err := f.saveErr
		if f.saveErrOnce {
			f.saveErr = nil
		}
		return err
	}
	f.saved = append(f.saved, events...)
	return nil
}

func (f *fakeAnalyticsDAO) SaveClickEvent(ctx context.Context, event *model.SearchClickEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, event)
	return nil
}

func (f *fakeAnalyticsDAO) QueryEvents(ctx context.Context, organizationID string, timeRange model.TimeRange) ([]*model.SearchAnalyticsEvent, error) {
	return f.events, nil
}

func (f *fakeAnalyticsDAO) QueryClickEvents(ctx context.Context, organizationID string, timeRange model.TimeRange) ([]*model.SearchClickEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clicks, nil
}

func (f *fakeAnalyticsDAO) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeAnalyticsDAO) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

// fakeProfileDAO 档案存储替身
type fakeProfileDAO struct {
	mu       sync.Mutex
	profiles map[string]*model.SearchPersonalizationProfile
	getErr   error
}

func newFakeProfileDAO() *fakeProfileDAO {
	return &fakeProfileDAO{profiles: make(map[string]*model.SearchPersonalizationProfile)}
}

func (f *fakeProfileDAO) GetProfile(ctx context.Context, userID, organizationID string) (*model.SearchPersonalizationProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if p, ok := f.profiles[userID+"/"+organizationID]; ok {
		return p, nil
	}
	return model.DefaultProfile(userID, organizationID), nil
}

func (f *fakeProfileDAO) SaveProfile(ctx context.Context, profile *model.SearchPersonalizationProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[profile.UserID+"/"+profile.OrganizationID] = profile
	return nil
}

// fakeCache 内存缓存替身
type fakeCache struct {
	mu          sync.Mutex
	results     map[string]*model.SearchResult
	suggestions map[string][]model.SearchSuggestion
	hotCounts   map[string]int
	hotQueries  []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		results:     make(map[string]*model.SearchResult),
		suggestions: make(map[string][]model.SearchSuggestion),
		hotCounts:   make(map[string]int),
	}
}

func (f *fakeCache) GetSearchResult(ctx context.Context, key string) (*model.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.results[key]; ok {
		return r, nil
	}
	return nil, ErrCacheMiss
}

func (f *fakeCache) SetSearchResult(ctx context.Context, key string, result *model.SearchResult, ttl int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[key] = result
	return nil
}

func (f *fakeCache) GetSuggestions(ctx context.Context, key string) ([]model.SearchSuggestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.suggestions[key]; ok {
		return s, nil
	}
	return nil, ErrCacheMiss
}

func (f *fakeCache) SetSuggestions(ctx context.Context, key string, suggestions []model.SearchSuggestion, ttl int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggestions[key] = suggestions
	return nil
}

func (f *fakeCache) GetProfile(ctx context.Context, userID, organizationID string) (*model.SearchPersonalizationProfile, error) {
	return nil, ErrCacheMiss
}

func (f *fakeCache) SetProfile(ctx context.Context, profile *model.SearchPersonalizationProfile, ttl int) error {
	return nil
}

func (f *fakeCache) InvalidateProfile(ctx context.Context, userID, organizationID string) error {
	return nil
}

func (f *fakeCache) IncrementHotQuery(ctx context.Context, organizationID, query string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hotCounts[organizationID+":"+query]++
	return nil
}

func (f *fakeCache) GetHotQueries(ctx context.Context, organizationID string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.hotQueries) > limit {
		return f.hotQueries[:limit], nil
	}
	return f.hotQueries, nil
}

// fakeEvents 事件发布替身
type fakeEvents struct {
	mu        sync.Mutex
	published []*model.SearchAnalyticsEvent
	clicks    []*model.SearchClickEvent
	failNext  bool
}

func (f *fakeEvents) PublishSearchEvents(events []*model.SearchAnalyticsEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return fmt.Errorf("broker unavailable")
	}
	f.published = append(f.published, events...)
	return nil
}

func (f *fakeEvents) PublishClickEvent(event *model.SearchClickEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, event)
	return nil
}

func (f *fakeEvents) Close() error { return nil }
