package dao

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"opensign/apps/search-service/internal/model"
	"opensign/pkg/logger"
)

// elasticsearchDAO ElasticSearch数据访问对象
type elasticsearchDAO struct {
	client *elasticsearch.Client
	logger logger.Logger
}

// NewElasticsearchDAO 创建ElasticSearch DAO实例
func NewElasticsearchDAO(client *elasticsearch.Client, log logger.Logger) SearchDAO {
	return &elasticsearchDAO{
		client: client,
		logger: log,
	}
}

// ============ 索引管理 ============

// EnsureIndex 幂等创建索引：不存在则建索引+映射，已存在则只更新映射，永不破坏数据
func (d *elasticsearchDAO) EnsureIndex(ctx context.Context, indexName string) error {
	exists, err := d.IndexExists(ctx, indexName)
	if err != nil {
		return err
	}

	if !exists {
		indexConfig := map[string]interface{}{
			"mappings": buildIndexMapping(),
			"settings": buildIndexSettings(),
		}

		configJSON, err := json.Marshal(indexConfig)
		if err != nil {
			return fmt.Errorf("failed to marshal index config: %v", err)
		}

		req := esapi.IndicesCreateRequest{
			Index: indexName,
			Body:  bytes.NewReader(configJSON),
		}

		res, err := req.Do(ctx, d.client)
		if err != nil {
			d.logger.Error(ctx, "Failed to create index",
				logger.F("index", indexName),
				logger.F("error", err.Error()))
			return fmt.Errorf("failed to create index: %v", err)
		}
		defer res.Body.Close()

		if res.IsError() {
			return fmt.Errorf("failed to create index: %s", res.String())
		}

		d.logger.Info(ctx, "Index created successfully",
			logger.F("index", indexName))
		return nil
	}

	// 索引已存在，只补映射
	mappingJSON, err := json.Marshal(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("failed to marshal index mapping: %v", err)
	}

	req := esapi.IndicesPutMappingRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(mappingJSON),
	}

	res, err := req.Do(ctx, d.client)
	if err != nil {
		return fmt.Errorf("failed to update index mapping: %v", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to update index mapping: %s", res.String())
	}

	d.logger.Debug(ctx, "Index mapping updated",
		logger.F("index", indexName))
	return nil
}

// IndexExists 检查索引是否存在
func (d *elasticsearchDAO) IndexExists(ctx context.Context, indexName string) (bool, error) {
	req := esapi.IndicesExistsRequest{
		Index: []string{indexName},
	}

	res, err := req.Do(ctx, d.client)
	if err != nil {
		return false, fmt.Errorf("failed to check index existence: %v", err)
	}
	defer res.Body.Close()

	return res.StatusCode == 200, nil
}

// DeleteIndex 删除索引
func (d *elasticsearchDAO) DeleteIndex(ctx context.Context, indexName string) error {
	req := esapi.IndicesDeleteRequest{
		Index: []string{indexName},
	}

	res, err := req.Do(ctx, d.client)
	if err != nil {
		return fmt.Errorf("failed to delete index: %v", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("failed to delete index: %s", res.String())
	}

	d.logger.Info(ctx, "Index deleted",
		logger.F("index", indexName))
	return nil
}

// ============ 文档操作 ============

// IndexDocument 索引单个文档，按ID覆盖写入
func (d *elasticsearchDAO) IndexDocument(ctx context.Context, doc *model.SearchDocument) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %v", err)
	}

	req := esapi.IndexRequest{
		Index:      model.IndexDocuments,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(docJSON),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, d.client)
	if err != nil {
		d.logger.Error(ctx, "Failed to index document",
			logger.F("doc_id", doc.ID),
			logger.F("entity_type", doc.EntityType),
			logger.F("error", err.Error()))
		return fmt.Errorf("failed to index document: %v", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index document: %s", res.String())
	}

	d.logger.Debug(ctx, "Document indexed successfully",
		logger.F("doc_id", doc.ID),
		logger.F("entity_type", doc.EntityType))
	return nil
}

// BulkIndexDocuments 批量索引文档，逐条上报失败而不中止整批
func (d *elasticsearchDAO) BulkIndexDocuments(ctx context.Context, docs []*model.SearchDocument) ([]BulkItemError, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	for _, doc := range docs {
		meta := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": model.IndexDocuments,
				"_id":    doc.ID,
			},
		}
		metaJSON, _ := json.Marshal(meta)
		buf.Write(metaJSON)
		buf.WriteByte('\n')

		docJSON, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal document %s: %v", doc.ID, err)
		}
		buf.Write(docJSON)
		buf.WriteByte('\n')
	}

	req := esapi.BulkRequest{
		Body:    &buf,
		Refresh: "true",
	}

	res, err := req.Do(ctx, d.client)
	if err != nil {
		d.logger.Error(ctx, "Failed to bulk index documents",
			logger.F("count", len(docs)),
			logger.F("error", err.Error()))
		return nil, fmt.Errorf("failed to bulk index documents: %v", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("failed to bulk index documents: %s", res.String())
	}

	var bulkResponse struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResponse); err != nil {
		return nil, fmt.Errorf("failed to decode bulk response: %v", err)
	}

	var itemErrors []BulkItemError
	if bulkResponse.Errors {
		for _, item := range bulkResponse.Items {
			for _, result := range item {
				if result.Error != nil {
					itemErrors = append(itemErrors, BulkItemError{
						DocumentID: result.ID,
						Reason:     fmt.Sprintf("%s: %s", result.Error.Type, result.Error.Reason),
					})
				}
			}
		}
		d.logger.Warn(ctx, "Bulk operation had partial failures",
			logger.F("total", len(docs)),
			logger.F("failed", len(itemErrors)))
	}

	d.logger.Info(ctx, "Bulk index completed",
		logger.F("count", len(docs)),
		logger.F("failed", len(itemErrors)))
	return itemErrors, nil
}

// DeleteDocument 删除文档，不存在不视为错误
func (d *elasticsearchDAO) DeleteDocument(ctx context.Context, id, entityType string) error {
	req := esapi.DeleteRequest{
		Index:      model.IndexDocuments,
		DocumentID: id,
		Refresh:    "true",
	}

	res, err := req.Do(ctx, d.client)
	if err != nil {
		return fmt.Errorf("failed to delete document: %v", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("failed to delete document: %s", res.String())
	}

	d.logger.Debug(ctx, "Document deleted",
		logger.F("doc_id", id),
		logger.F("entity_type", entityType))
	return nil
}

// GetDocument 获取文档
func (d *elasticsearchDAO) GetDocument(ctx context.Context, id string) (*model.SearchDocument, error) {
	req := esapi.GetRequest{
		Index:      model.IndexDocuments,
		DocumentID: id,
	}

	res, err := req.Do(ctx, d.client)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %v", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == 404 {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %s", res.String())
	}

	var result struct {
		Source model.SearchDocument `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode document: %v", err)
	}

	return &result.Source, nil
}

// DeleteByOrganization 删除组织的全部文档，重建索引时使用
func (d *elasticsearchDAO) DeleteByOrganization(ctx context.Context, organizationID string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				model.FieldOrgID: organizationID,
			},
		},
	}

	queryJSON, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("failed to marshal delete query: %v", err)
	}

	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:   []string{model.IndexDocuments},
		Body:    bytes.NewReader(queryJSON),
		Refresh: &refresh,
	}

	res, err := req.Do(ctx, d.client)
	if err != nil {
		return fmt.Errorf("failed to delete organization documents: %v", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to delete organization documents: %s", res.String())
	}

	d.logger.Info(ctx, "Organization documents deleted",
		logger.F("organization_id", organizationID))
	return nil
}

// ============ 搜索操作 ============

// Search 执行搜索，返回映射后的文档与原始聚合桶
func (d *elasticsearchDAO) Search(ctx context.Context, query *model.SearchQuery, organizationID, userID string, facets []model.FacetConfig) (*RawSearchResult, error) {
	body := map[string]interface{}{
		"query": d.buildSearchQuery(query, organizationID, userID),
		"from":  (query.Pagination.Page - 1) * query.Pagination.Limit,
		"size":  query.Pagination.Limit,
		"sort":  d.buildSortQuery(query.Sort),
	}

	if query.Highlight {
		body["highlight"] = d.buildHighlightQuery()
	}

	if aggs := d.buildAggregations(facets); aggs != nil {
		body["aggs"] = aggs
	}

	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %v", err)
	}

	req := esapi.SearchRequest{
		Index: []string{model.IndexDocuments},
		Body:  bytes.NewReader(bodyJSON),
	}

	res, err := req.Do(ctx, d.client)
	if err != nil {
		d.logger.Error(ctx, "Failed to execute search",
			logger.F("organization_id", organizationID),
			logger.F("error", err.Error()))
		return nil, fmt.Errorf("failed to execute search: %v", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.String())
	}

	return d.convertSearchResponse(ctx, res)
}

// SuggestCompletions 前缀补全，基于标题的短语前缀匹配，限定组织范围
func (d *elasticsearchDAO) SuggestCompletions(ctx context.Context, prefix, organizationID string, limit int) ([]model.SearchSuggestion, error) {
	if limit <= 0 {
		limit = model.MaxSuggestions
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"match_phrase_prefix": map[string]interface{}{
							"title": map[string]interface{}{
								"query": prefix,
							},
						},
					},
				},
				"filter": []interface{}{
					map[string]interface{}{
						"term": map[string]interface{}{
							model.FieldOrgID: organizationID,
						},
					},
				},
			},
		},
		"size":    limit,
		"_source": []string{"title"},
	}

	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal suggest query: %v", err)
	}

	req := esapi.SearchRequest{
		Index: []string{model.IndexDocuments},
		Body:  bytes.NewReader(bodyJSON),
	}

	res, err := req.Do(ctx, d.client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute suggest query: %v", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("suggest query failed: %s", res.String())
	}

	var response struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					Title string `json:"title"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode suggest response: %v", err)
	}

	suggestions := make([]model.SearchSuggestion, 0, len(response.Hits.Hits))
	seen := make(map[string]bool)
	for _, hit := range response.Hits.Hits {
		title := strings.TrimSpace(hit.Source.Title)
		if title == "" || seen[strings.ToLower(title)] {
			continue
		}
		seen[strings.ToLower(title)] = true
		suggestions = append(suggestions, model.SearchSuggestion{
			Text:      title,
			Type:      model.SuggestionTypeCompletion,
			Score:     hit.Score,
			Highlight: prefix,
		})
	}

	return suggestions, nil
}

// ============ 状态检查 ============

// GetClusterHealth 集群健康状态，瞬时不可用返回降级状态而非错误
func (d *elasticsearchDAO) GetClusterHealth(ctx context.Context) *ClusterHealth {
	req := esapi.ClusterHealthRequest{}

	res, err := req.Do(ctx, d.client)
	if err != nil {
		return &ClusterHealth{
			Status:    "red",
			Reachable: false,
			Detail:    err.Error(),
		}
	}
	defer res.Body.Close()

	if res.IsError() {
		return &ClusterHealth{
			Status:    "red",
			Reachable: true,
			Detail:    res.String(),
		}
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return &ClusterHealth{
			Status:    "red",
			Reachable: true,
			Detail:    fmt.Sprintf("failed to decode cluster health: %v", err),
		}
	}

	return &ClusterHealth{
		Status:    health.Status,
		Reachable: true,
	}
}

// GetIndexStats 索引统计
func (d *elasticsearchDAO) GetIndexStats(ctx context.Context, indexName string) (*IndexStats, error) {
	req := esapi.IndicesStatsRequest{
		Index: []string{indexName},
	}

	res, err := req.Do(ctx, d.client)
	if err != nil {
		return nil, fmt.Errorf("failed to get index stats: %v", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("get index stats failed: %s", res.String())
	}

	var response struct {
		All struct {
			Primaries struct {
				Docs struct {
					Count int64 `json:"count"`
				} `json:"docs"`
				Store struct {
					SizeInBytes int64 `json:"size_in_bytes"`
				} `json:"store"`
			} `json:"primaries"`
		} `json:"_all"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode index stats: %v", err)
	}

	return &IndexStats{
		DocumentCount: response.All.Primaries.Docs.Count,
		SizeBytes:     response.All.Primaries.Store.SizeInBytes,
	}, nil
}

// Ping 检查ElasticSearch连接
func (d *elasticsearchDAO) Ping(ctx context.Context) error {
	req := esapi.PingRequest{}

	res, err := req.Do(ctx, d.client)
	if err != nil {
		return fmt.Errorf("failed to ping elasticsearch: %v", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.String())
	}

	return nil
}
