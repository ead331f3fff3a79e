package service

import (
	"context"
	"sort"
	"strings"

	"opensign/apps/search-service/internal/dao"
	"opensign/apps/search-service/internal/model"
	"opensign/pkg/logger"
)

// suggestionService 建议引擎实现
type suggestionService struct {
	searchDAO  dao.SearchDAO
	config     *ServiceConfig
	logger     logger.Logger
	vocabulary []string
}

// NewSuggestionService 创建建议引擎实例
func NewSuggestionService(searchDAO dao.SearchDAO, config *ServiceConfig, log logger.Logger) SuggestionService {
	return &suggestionService{
		searchDAO:  searchDAO,
		config:     config,
		logger:     log,
		vocabulary: buildVocabulary(),
	}
}

// Complete 前缀补全建议
//
// 候选来自索引内标题的前缀匹配与用户自身搜索历史，
// 引擎查询失败只记日志，历史候选仍正常返回。
func (s *suggestionService) Complete(ctx context.Context, prefix, organizationID string, profile *model.SearchPersonalizationProfile, limit int) ([]model.SearchSuggestion, error) {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) < model.MinSuggestionQueryLength {
		return nil, nil
	}
	if limit <= 0 || limit > model.MaxSuggestions {
		limit = model.MaxSuggestions
	}

	var candidates []model.SearchSuggestion

	fromIndex, err := s.searchDAO.SuggestCompletions(ctx, prefix, organizationID, limit)
	if err != nil {
		s.logger.Warn(ctx, "Completion lookup failed, falling back to history",
			logger.F("prefix", prefix), logger.F("error", err.Error()))
	} else {
		candidates = append(candidates, fromIndex...)
	}

	candidates = append(candidates, s.historyCompletions(prefix, profile)...)

	return s.finalize(candidates, limit), nil
}

// historyCompletions 从用户搜索历史里取前缀匹配的候选
func (s *suggestionService) historyCompletions(prefix string, profile *model.SearchPersonalizationProfile) []model.SearchSuggestion {
	if profile == nil {
		return nil
	}

	lowerPrefix := strings.ToLower(prefix)
	var out []model.SearchSuggestion
	seen := make(map[string]bool)
	for _, past := range profile.SearchHistory {
		lower := strings.ToLower(past)
		if !strings.HasPrefix(lower, lowerPrefix) || lower == lowerPrefix || seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, model.SearchSuggestion{
			Text:      past,
			Type:      model.SuggestionTypeCompletion,
			Score:     0.6,
			Highlight: prefix,
		})
		if len(out) >= model.MaxHistorySuggestions {
			break
		}
	}
	return out
}

// ForResult 搜索完成后为结果附加建议
//
// 拼写纠正建议基于纠正前的原始文本，相关建议来自结果文档的标签
// 与用户近期搜索，零结果时纠正建议尤其重要。
func (s *suggestionService) ForResult(ctx context.Context, query *model.SearchQuery, result *model.SearchResult, profile *model.SearchPersonalizationProfile) []model.SearchSuggestion {
	var suggestions []model.SearchSuggestion

	if query.OriginalQuery != "" {
		corrected := correctSpelling(query.OriginalQuery, s.vocabulary)
		if corrected != query.OriginalQuery {
			suggestions = append(suggestions, model.SearchSuggestion{
				Text:  corrected,
				Type:  model.SuggestionTypeCorrection,
				Score: model.CorrectionScore,
			})
		}
	}

	suggestions = append(suggestions, s.relatedFromResult(query, result)...)
	suggestions = append(suggestions, s.relatedFromHistory(query, profile)...)

	return s.finalize(suggestions, model.MaxSuggestions)
}

// maxRelatedTagSuggestions 从结果标签派生的相关建议上限
const maxRelatedTagSuggestions = 3

// relatedFromResult 聚合结果文档的标签构造细化查询建议
//
// 标签按在整个结果集中的出现频次排序，建议文本为原查询加标签，
// 查询里已包含的标签不再推荐。
func (s *suggestionService) relatedFromResult(query *model.SearchQuery, result *model.SearchResult) []model.SearchSuggestion {
	if result == nil || len(result.Documents) == 0 || query.OriginalQuery == "" {
		return nil
	}

	lowerQuery := strings.ToLower(query.OriginalQuery)
	counts := make(map[string]int)
	display := make(map[string]string)
	for _, doc := range result.Documents {
		for _, tag := range doc.Tags {
			lower := strings.ToLower(tag)
			if lower == "" || strings.Contains(lowerQuery, lower) {
				continue
			}
			counts[lower]++
			if _, ok := display[lower]; !ok {
				display[lower] = tag
			}
		}
	}
	if len(counts) == 0 {
		return nil
	}

	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.SliceStable(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if len(tags) > maxRelatedTagSuggestions {
		tags = tags[:maxRelatedTagSuggestions]
	}

	out := make([]model.SearchSuggestion, 0, len(tags))
	for _, tag := range tags {
		out = append(out, model.SearchSuggestion{
			Text:  query.OriginalQuery + " " + display[tag],
			Type:  model.SuggestionTypeRelated,
			Score: model.DefaultSuggestionScore,
		})
	}
	return out
}

// relatedFromHistory 用与当前查询有词干重叠的近期搜索构造相关建议
func (s *suggestionService) relatedFromHistory(query *model.SearchQuery, profile *model.SearchPersonalizationProfile) []model.SearchSuggestion {
	if profile == nil || query.OriginalQuery == "" {
		return nil
	}

	lowerQuery := strings.ToLower(query.OriginalQuery)
	var out []model.SearchSuggestion
	seen := make(map[string]bool)
	for _, past := range profile.SearchHistory {
		lower := strings.ToLower(past)
		if lower == lowerQuery || seen[lower] {
			continue
		}
		if textSimilarity(query.OriginalQuery, past) == 0 {
			continue
		}
		seen[lower] = true
		out = append(out, model.SearchSuggestion{
			Text:  past,
			Type:  model.SuggestionTypeRelated,
			Score: 0.4,
		})
		if len(out) >= model.MaxHistorySuggestions {
			break
		}
	}
	return out
}

// finalize 去重、过滤低分、按分数降序并截断
func (s *suggestionService) finalize(suggestions []model.SearchSuggestion, limit int) []model.SearchSuggestion {
	seen := make(map[string]bool, len(suggestions))
	kept := make([]model.SearchSuggestion, 0, len(suggestions))
	for _, sg := range suggestions {
		key := strings.ToLower(sg.Text)
		if key == "" || seen[key] || sg.Score < s.config.MinSuggestionScore {
			continue
		}
		seen[key] = true
		kept = append(kept, sg)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
