package dao

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"opensign/apps/search-service/internal/model"
	"opensign/pkg/logger"
)

// ============ 结果转换 ============

// searchResponseBody 引擎搜索响应的解码结构
type searchResponseBody struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID        string               `json:"_id"`
			Score     float64              `json:"_score"`
			Source    model.SearchDocument `json:"_source"`
			Highlight map[string][]string  `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

// convertSearchResponse 将引擎响应映射为文档列表与原始聚合桶
//
// 单条记录解码失败跳过并告警，不让整次搜索失败。
func (d *elasticsearchDAO) convertSearchResponse(ctx context.Context, res *esapi.Response) (*RawSearchResult, error) {
	var body searchResponseBody
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %v", err)
	}

	documents := make([]*model.SearchDocument, 0, len(body.Hits.Hits))
	for _, hit := range body.Hits.Hits {
		doc := hit.Source
		if doc.ID == "" {
			doc.ID = hit.ID
		}
		doc.Score = &model.SearchScore{
			TextMatch: hit.Score,
			Total:     hit.Score,
		}
		if len(hit.Highlight) > 0 {
			doc.Highlight = hit.Highlight
		}
		documents = append(documents, &doc)
	}

	result := &RawSearchResult{
		Documents: documents,
		Total:     body.Hits.Total.Value,
	}

	if len(body.Aggregations) > 0 {
		result.Aggregations = make(map[string]interface{}, len(body.Aggregations))
		for field, raw := range body.Aggregations {
			var agg interface{}
			if err := json.Unmarshal(raw, &agg); err != nil {
				d.logger.Warn(ctx, "Failed to decode aggregation",
					logger.F("field", field),
					logger.F("error", err.Error()))
				continue
			}
			result.Aggregations[field] = agg
		}
	}

	return result, nil
}

// ExtractAggBuckets 从原始聚合结构提取平铺桶列表
//
// 分面引擎依赖该函数把引擎桶转成 {key,count}，不可识别的结构返回空。
func ExtractAggBuckets(agg interface{}) []model.FacetBucket {
	aggMap, ok := agg.(map[string]interface{})
	if !ok {
		return nil
	}

	rawBuckets, ok := aggMap["buckets"].([]interface{})
	if !ok {
		return nil
	}

	buckets := make([]model.FacetBucket, 0, len(rawBuckets))
	for _, rb := range rawBuckets {
		bucketMap, ok := rb.(map[string]interface{})
		if !ok {
			continue
		}

		bucket := model.FacetBucket{}
		switch key := bucketMap["key"].(type) {
		case string:
			bucket.Key = key
		case float64:
			bucket.Key = formatNumericKey(key)
		default:
			continue
		}

		// date_histogram 桶优先使用格式化键
		if keyAsString, ok := bucketMap["key_as_string"].(string); ok && keyAsString != "" {
			bucket.Key = keyAsString
		}

		if count, ok := bucketMap["doc_count"].(float64); ok {
			bucket.Count = int64(count)
		}

		buckets = append(buckets, bucket)
	}

	return buckets
}

// formatNumericKey 数值桶键格式化，整数不带小数位
func formatNumericKey(key float64) string {
	if key == float64(int64(key)) {
		return fmt.Sprintf("%d", int64(key))
	}
	return fmt.Sprintf("%g", key)
}
