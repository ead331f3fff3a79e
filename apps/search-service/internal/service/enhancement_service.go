package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"opensign/apps/search-service/internal/model"
	"opensign/pkg/logger"
)

// intentPattern 意图识别规则，按声明顺序匹配，先命中者生效
type intentPattern struct {
	intentType string
	pattern    *regexp.Regexp
	confidence float64
}

// enhancementService 查询增强服务实现
type enhancementService struct {
	config     *ServiceConfig
	logger     logger.Logger
	intents    []intentPattern
	synonyms   map[string][]string
	vocabulary []string
}

// NewEnhancementService 创建查询增强服务实例
func NewEnhancementService(config *ServiceConfig, log logger.Logger) EnhancementService {
	return &enhancementService{
		config:     config,
		logger:     log,
		intents:    buildIntentPatterns(),
		synonyms:   buildSynonymTable(),
		vocabulary: buildVocabulary(),
	}
}

// buildIntentPatterns 构造意图规则表
//
// 规则顺序即优先级，置信度为固定值，保证同一查询永远得到同一意图。
func buildIntentPatterns() []intentPattern {
	return []intentPattern{
		{model.IntentFindTemplate, regexp.MustCompile(`(?i)\btemplates?\b`), 0.85},
		{model.IntentFindRecent, regexp.MustCompile(`(?i)\b(recent|latest|newest|today|yesterday|this week|last week|this month)\b`), 0.8},
		{model.IntentFindByAuthor, regexp.MustCompile(`(?i)\b(?:by|from|created by|signed by)\s+([a-z][a-z0-9._-]+(?:\s+[a-z][a-z0-9._-]+)?)\b`), 0.75},
		{model.IntentFindByType, regexp.MustCompile(`(?i)\b(contracts?|invoices?|agreements?|ndas?|proposals?|receipts?)\b`), 0.7},
	}
}

// buildSynonymTable 电子签署领域同义词表
func buildSynonymTable() map[string][]string {
	return map[string][]string{
		"contract":  {"agreement"},
		"agreement": {"contract"},
		"sign":      {"signature"},
		"signature": {"sign"},
		"doc":       {"document"},
		"document":  {"doc"},
		"envelope":  {"request"},
		"folder":    {"directory"},
		"nda":       {"nondisclosure"},
		"invoice":   {"bill"},
	}
}

// buildVocabulary 拼写纠正词表，只收录领域高频词
func buildVocabulary() []string {
	return []string{
		"document", "template", "signature", "contract", "agreement",
		"invoice", "envelope", "recipient", "signer", "folder",
		"audit", "organization", "request", "pending", "completed",
		"expired", "draft", "archived", "proposal", "receipt",
	}
}

// Enhance 执行查询增强流水线
//
// 顺序：意图识别 -> 拼写纠正 -> 同义词扩展 -> 个性化默认值。
// 各阶段只在对应开关打开时执行，且只丰富查询、从不收窄已有条件。
func (s *enhancementService) Enhance(ctx context.Context, query *model.SearchQuery, profile *model.SearchPersonalizationProfile) *model.SearchQuery {
	if query == nil {
		return query
	}

	if s.config.EnableIntentRecognition && query.Query != "" {
		intent := s.RecognizeIntent(query.Query)
		if intent.Confidence >= s.config.IntentConfidenceThreshold {
			s.applyIntent(query, intent)
		}
	}

	if s.config.EnableSpellCorrection && query.Query != "" {
		corrected := correctSpelling(query.Query, s.vocabulary)
		if corrected != query.Query {
			s.logger.Info(ctx, "Applied spell correction",
				logger.F("original", query.Query),
				logger.F("corrected", corrected))
			query.Query = corrected
		}
	}

	if s.config.EnableQueryExpansion && query.Query != "" {
		query.Query = s.expandQuery(query.Query)
	}

	if s.config.EnablePersonalization && profile != nil {
		s.applyProfileDefaults(query, profile)
	}

	return query
}

// RecognizeIntent 识别查询意图
//
// 无规则命中时归为 find_document，置信度低于阈值，调用方不会据此改写查询。
func (s *enhancementService) RecognizeIntent(query string) *model.SearchIntent {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return &model.SearchIntent{Type: model.IntentUnknown, Confidence: 0}
	}

	for _, p := range s.intents {
		matches := p.pattern.FindStringSubmatch(trimmed)
		if matches == nil {
			continue
		}

		intent := &model.SearchIntent{
			Type:       p.intentType,
			Confidence: p.confidence,
			Parameters: make(map[string]string),
		}
		switch p.intentType {
		case model.IntentFindByAuthor:
			if len(matches) > 1 {
				intent.Entities = append(intent.Entities, model.IntentEntity{
					Type:  "person",
					Value: strings.ToLower(matches[1]),
				})
			}
		case model.IntentFindByType:
			intent.Entities = append(intent.Entities, model.IntentEntity{
				Type:  "document_type",
				Value: normalizeDocumentType(matches[1]),
			})
		case model.IntentFindRecent:
			intent.Entities = append(intent.Entities, model.IntentEntity{
				Type:  "time_range",
				Value: strings.ToLower(matches[1]),
			})
		}
		return intent
	}

	return &model.SearchIntent{Type: model.IntentFindDocument, Confidence: 0.4}
}

// applyIntent 把识别出的意图落到查询上，只填充调用方未显式给出的条件
func (s *enhancementService) applyIntent(query *model.SearchQuery, intent *model.SearchIntent) {
	switch intent.Type {
	case model.IntentFindTemplate:
		if len(query.EntityTypes) == 0 {
			query.EntityTypes = []string{model.EntityTypeTemplate}
		}
	case model.IntentFindRecent:
		if query.Sort == nil {
			query.Sort = &model.SortOption{Field: model.SortByCreated, Order: model.SortOrderDesc}
		}
		if _, exists := query.Filters[model.FieldCreatedAt]; !exists {
			since := recentSince(intent.Entity("time_range"), time.Now())
			if query.Filters == nil {
				query.Filters = make(map[string]model.QueryFilter)
			}
			query.Filters[model.FieldCreatedAt] = model.RangeFilter(since.Format(time.RFC3339), nil)
		}
	case model.IntentFindByAuthor:
		author := intent.Entity("person")
		if author != "" {
			if _, exists := query.Filters["metadata.author"]; !exists {
				if query.Filters == nil {
					query.Filters = make(map[string]model.QueryFilter)
				}
				query.Filters["metadata.author"] = model.TermFilter(author)
			}
		}
	case model.IntentFindByType:
		docType := intent.Entity("document_type")
		if docType != "" {
			if _, exists := query.Filters["metadata.document_type"]; !exists {
				if query.Filters == nil {
					query.Filters = make(map[string]model.QueryFilter)
				}
				query.Filters["metadata.document_type"] = model.TermFilter(docType)
			}
		}
	}
}

// recentSince 将时间短语换算为起始时间，未识别的短语回退为最近24小时
func recentSince(phrase string, now time.Time) time.Time {
	switch phrase {
	case "today":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case "yesterday":
		y := now.AddDate(0, 0, -1)
		return time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, now.Location())
	case "this week", "last week":
		return now.AddDate(0, 0, -7)
	case "this month":
		return now.AddDate(0, -1, 0)
	default:
		return now.Add(-24 * time.Hour)
	}
}

// normalizeDocumentType 文档类型归一为单数小写
func normalizeDocumentType(raw string) string {
	t := strings.ToLower(raw)
	if t != "ndas" && strings.HasSuffix(t, "s") {
		t = strings.TrimSuffix(t, "s")
	}
	if t == "ndas" {
		t = "nda"
	}
	return t
}

// maxQueryExpansions 单次查询允许追加的扩展词上限
const maxQueryExpansions = 5

// expandQuery 同义词与词干扩展
//
// 每个词元追加词表同义词与其词干（词干与原词不同时），追加总量有上限。
// 扩展词追加在原查询之后，原词全部保留，结果集只增不减。
func (s *enhancementService) expandQuery(query string) string {
	tokens := tokenize(query)
	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		seen[t] = true
	}

	var additions []string
	for _, t := range tokens {
		if len(additions) >= maxQueryExpansions {
			break
		}
		for _, syn := range s.synonyms[t] {
			if len(additions) >= maxQueryExpansions {
				break
			}
			if !seen[syn] {
				seen[syn] = true
				additions = append(additions, syn)
			}
		}
		if stem := stemToken(t); stem != t && !seen[stem] && len(additions) < maxQueryExpansions {
			seen[stem] = true
			additions = append(additions, stem)
		}
	}

	if len(additions) == 0 {
		return query
	}
	return query + " " + strings.Join(additions, " ")
}

// applyProfileDefaults 用用户档案补齐未显式指定的偏好项
//
// 实体类型、排序、分面都只在调用方未给出时才从档案填充，
// 档案里的非法值直接忽略。
func (s *enhancementService) applyProfileDefaults(query *model.SearchQuery, profile *model.SearchPersonalizationProfile) {
	if len(query.EntityTypes) == 0 {
		for _, entityType := range profile.PreferredEntityTypes {
			if model.IsValidEntityType(entityType) {
				query.EntityTypes = append(query.EntityTypes, entityType)
			}
		}
	}

	if query.Sort == nil && model.IsValidSortField(profile.PreferredSortField) {
		order := profile.PreferredSortOrder
		if !model.IsValidSortOrder(order) {
			order = model.SortOrderDesc
		}
		query.Sort = &model.SortOption{Field: profile.PreferredSortField, Order: order}
	}

	if len(query.Facets) == 0 && len(profile.FacetOrder) > 0 {
		facets := profile.FacetOrder
		if len(facets) > model.MaxFacetFields {
			facets = facets[:model.MaxFacetFields]
		}
		query.Facets = facets
	}
}
