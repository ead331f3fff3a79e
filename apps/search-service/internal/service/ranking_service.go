package service

import (
	"sort"
	"strings"
	"time"

	"opensign/apps/search-service/internal/model"
	"opensign/pkg/logger"
)

// rankingService 结果排序引擎实现
type rankingService struct {
	config *ServiceConfig
	logger logger.Logger
}

// NewRankingService 创建排序引擎实例
func NewRankingService(config *ServiceConfig, log logger.Logger) RankingService {
	return &rankingService{
		config: config,
		logger: log,
	}
}

// Rank 对结果应用混合评分并重排
//
// 总分 = 文本相关性 + 新近度*权重 + 语义相似度*权重 + 个性化*缩放因子。
// now 由调用方传入，保证同一输入在任何时刻重放都得到同一顺序；
// 排序用稳定排序，总分相同的文档保持引擎给出的相对顺序。
func (s *rankingService) Rank(docs []*model.SearchDocument, query *model.SearchQuery, profile *model.SearchPersonalizationProfile, now time.Time) []*model.SearchDocument {
	if len(docs) == 0 {
		return docs
	}

	for _, doc := range docs {
		if doc.Score == nil {
			doc.Score = &model.SearchScore{}
		}
		score := doc.Score
		total := score.TextMatch

		score.Recency = recencyScore(doc.UpdatedAt, now)
		total += score.Recency * s.config.RecencyWeight

		if s.config.EnableSemanticRanking && query != nil && query.Query != "" {
			score.FieldMatch = s.semanticScore(query.Query, doc)
			total += score.FieldMatch * s.config.SemanticWeight
		}

		if s.config.EnablePersonalization && profile != nil {
			score.Personalization = s.personalizationScore(doc, profile)
			total += score.Personalization * s.config.UserWeightFactor
		}

		score.Total = total
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Score.Total > docs[j].Score.Total
	})
	return docs
}

// recencyScore 按最后更新时间衰减，30天半衰，归一化到(0,1]
func recencyScore(updatedAt, now time.Time) float64 {
	if updatedAt.IsZero() || updatedAt.After(now) {
		return 0
	}
	ageDays := now.Sub(updatedAt).Hours() / 24
	return 1 / (1 + ageDays/30)
}

// semanticScore 查询与文档标题、正文、标签的词干重叠相似度
func (s *rankingService) semanticScore(query string, doc *model.SearchDocument) float64 {
	text := doc.Title
	if doc.Content != "" {
		text += " " + doc.Content
	}
	if len(doc.Tags) > 0 {
		text += " " + strings.Join(doc.Tags, " ")
	}
	return textSimilarity(query, text)
}

// personalizationScore 用户行为信号加分
//
// 各信号单调递增：点击越多分越高（有上限）、协作者文档、
// 近期访问过的文档、偏好实体类型各自固定加分。
func (s *rankingService) personalizationScore(doc *model.SearchDocument, profile *model.SearchPersonalizationProfile) float64 {
	var score float64

	clicks := profile.ClickCounts[doc.ID]
	clickBoost := float64(clicks) * s.config.ClickWeight
	if clickBoost > s.config.MaxClickBoost {
		clickBoost = s.config.MaxClickBoost
	}
	score += clickBoost

	if profile.IsCollaborator(doc.UserID) {
		score += s.config.CollaboratorBonus
	}
	if profile.HasRecentDocument(doc.ID) {
		score += s.config.RecentDocBonus
	}
	if profile.PrefersEntityType(doc.EntityType) {
		score += s.config.PreferredTypeBonus
	}
	return score
}
