package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"opensign/apps/search-service/internal/dao"
	"opensign/apps/search-service/internal/model"
	"opensign/pkg/logger"
)

// analyticsService 分析服务实现
//
// 搜索事件先进内存缓冲，攒满一批或到达定时周期后异步落盘并发布到消息队列，
// 分析链路整体尽力而为，永不阻塞搜索请求路径。
type analyticsService struct {
	analyticsDAO dao.AnalyticsDAO
	profileDAO   dao.ProfileDAO
	searchDAO    dao.SearchDAO
	cache        CacheService
	eventService EventService
	config       *ServiceConfig
	logger       logger.Logger

	mu     sync.Mutex
	buffer []*model.SearchAnalyticsEvent
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewAnalyticsService 创建分析服务实例并启动定时刷新
func NewAnalyticsService(
	analyticsDAO dao.AnalyticsDAO,
	profileDAO dao.ProfileDAO,
	searchDAO dao.SearchDAO,
	cache CacheService,
	eventService EventService,
	config *ServiceConfig,
	log logger.Logger,
) AnalyticsService {
	s := &analyticsService{
		analyticsDAO: analyticsDAO,
		profileDAO:   profileDAO,
		searchDAO:    searchDAO,
		cache:        cache,
		eventService: eventService,
		config:       config,
		logger:       log,
		buffer:       make([]*model.SearchAnalyticsEvent, 0, config.AnalyticsBatchSize),
		done:         make(chan struct{}),
	}

	s.wg.Add(1)
	go s.flushLoop()

	return s
}

// RecordSearch 缓冲一条搜索分析事件
//
// 攒满一批立即触发异步刷新，未满的由定时器兜底。
func (s *analyticsService) RecordSearch(event *model.SearchAnalyticsEvent) {
	if !s.config.EnableAnalytics || event == nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.buffer = append(s.buffer, event)
	var batch []*model.SearchAnalyticsEvent
	if len(s.buffer) >= s.config.AnalyticsBatchSize {
		batch = s.swapBufferLocked()
	}
	s.mu.Unlock()

	if batch != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.persistBatch(batch)
		}()
	}
}

// RecordClick 记录点击事件并回填行为信号
//
// 点击事件落盘失败向上返回，缓冲事件回填与档案更新失败只记日志。
func (s *analyticsService) RecordClick(ctx context.Context, click *model.SearchClickEvent) error {
	if click == nil {
		return fmt.Errorf("click event is nil")
	}

	if err := s.analyticsDAO.SaveClickEvent(ctx, click); err != nil {
		s.logger.Error(ctx, "Failed to save click event",
			logger.F("searchID", click.SearchID),
			logger.F("documentID", click.DocumentID),
			logger.F("error", err.Error()))
		return fmt.Errorf("failed to save click event: %v", err)
	}

	// 对应搜索事件还在缓冲里时直接回填点击
	s.mu.Lock()
	for _, event := range s.buffer {
		if event.SearchID == click.SearchID {
			event.ClickThroughs = append(event.ClickThroughs, model.ClickThrough{
				DocumentID: click.DocumentID,
				Position:   click.Position,
				ClickedAt:  click.CreatedAt,
			})
			break
		}
	}
	s.mu.Unlock()

	if s.config.EventEnabled && s.eventService != nil {
		if err := s.eventService.PublishClickEvent(click); err != nil {
			s.logger.Warn(ctx, "Failed to publish click event",
				logger.F("searchID", click.SearchID),
				logger.F("error", err.Error()))
		}
	}

	s.updateProfileFromClick(ctx, click)
	return nil
}

// updateProfileFromClick 用点击增量更新用户档案
func (s *analyticsService) updateProfileFromClick(ctx context.Context, click *model.SearchClickEvent) {
	if click.UserID == "" {
		return
	}

	profile, err := s.profileDAO.GetProfile(ctx, click.UserID, click.OrganizationID)
	if err != nil {
		s.logger.Warn(ctx, "Failed to load profile for click update",
			logger.F("userID", click.UserID),
			logger.F("error", err.Error()))
		return
	}

	profile.RecordClick(click.DocumentID)
	if err := s.profileDAO.SaveProfile(ctx, profile); err != nil {
		s.logger.Warn(ctx, "Failed to save profile after click",
			logger.F("userID", click.UserID),
			logger.F("error", err.Error()))
	}
}

// flushLoop 定时刷新缓冲
func (s *analyticsService) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.AnalyticsFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			batch := s.swapBufferLocked()
			s.mu.Unlock()
			s.persistBatch(batch)
		case <-s.done:
			return
		}
	}
}

// swapBufferLocked 原子交换缓冲，调用方必须持有锁
func (s *analyticsService) swapBufferLocked() []*model.SearchAnalyticsEvent {
	if len(s.buffer) == 0 {
		return nil
	}
	batch := s.buffer
	s.buffer = make([]*model.SearchAnalyticsEvent, 0, s.config.AnalyticsBatchSize)
	return batch
}

// persistBatch 落盘一批事件并发布到消息队列
//
// 落盘失败把批次放回缓冲等待下次刷新，缓冲超过十个批次时丢弃最旧事件。
func (s *analyticsService) persistBatch(batch []*model.SearchAnalyticsEvent) {
	if len(batch) == 0 {
		return
	}

	ctx := context.Background()
	if err := s.analyticsDAO.SaveEvents(ctx, batch); err != nil {
		s.logger.Error(ctx, "Failed to persist analytics batch, requeueing",
			logger.F("count", len(batch)),
			logger.F("error", err.Error()))

		s.mu.Lock()
		s.buffer = append(batch, s.buffer...)
		if max := s.config.AnalyticsBatchSize * 10; len(s.buffer) > max {
			s.buffer = s.buffer[len(s.buffer)-max:]
		}
		s.mu.Unlock()
		return
	}

	if s.config.EventEnabled && s.eventService != nil {
		if err := s.eventService.PublishSearchEvents(batch); err != nil {
			s.logger.Warn(ctx, "Failed to publish analytics batch",
				logger.F("count", len(batch)),
				logger.F("error", err.Error()))
		}
	}
}

// Flush 同步刷出当前缓冲
func (s *analyticsService) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.swapBufferLocked()
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := s.analyticsDAO.SaveEvents(ctx, batch); err != nil {
		return fmt.Errorf("failed to flush analytics events: %v", err)
	}
	if s.config.EventEnabled && s.eventService != nil {
		if err := s.eventService.PublishSearchEvents(batch); err != nil {
			s.logger.Warn(ctx, "Failed to publish analytics batch",
				logger.F("count", len(batch)),
				logger.F("error", err.Error()))
		}
	}
	return nil
}

// Close 停止定时刷新并做最后一次刷出
func (s *analyticsService) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)

	waited := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	}

	return s.Flush(ctx)
}

// ============ 指标计算 ============

// ComputeMetrics 计算组织在时间范围内的聚合指标
//
// 搜索事件落盘后才到达的点击单独存储，这里按 SearchID 关联回事件，
// 保证点击率、MRR 不漏算晚到的点击。
func (s *analyticsService) ComputeMetrics(ctx context.Context, organizationID string, timeRange model.TimeRange) (*model.SearchMetrics, error) {
	events, err := s.analyticsDAO.QueryEvents(ctx, organizationID, timeRange)
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics events: %v", err)
	}
	storedClicks := s.clicksBySearch(ctx, organizationID, timeRange)

	metrics := &model.SearchMetrics{
		TotalSearches: int64(len(events)),
	}
	if health := s.searchDAO.GetClusterHealth(ctx); health != nil {
		metrics.IndexHealth = health.Status
	}
	if len(events) == 0 {
		return metrics, nil
	}

	latencies := make([]float64, 0, len(events))
	sessions := make(map[string]bool)
	queryCounts := make(map[string]*model.QueryStat)
	zeroCounts := make(map[string]*model.QueryStat)
	var totalLatency float64
	var clickedSearches int64
	var reciprocalSum float64
	var ndcgSum float64
	var ndcgCount int64

	for _, event := range events {
		latencies = append(latencies, float64(event.SearchTimeMs))
		totalLatency += float64(event.SearchTimeMs)
		if event.SessionID != "" {
			sessions[event.SessionID] = true
		}

		if event.Query != "" {
			stat, ok := queryCounts[event.Query]
			if !ok {
				stat = &model.QueryStat{Query: event.Query}
				queryCounts[event.Query] = stat
			}
			stat.Count++
			stat.AvgResults += float64(event.ResultCount)

			if event.ResultCount == 0 {
				zero, ok := zeroCounts[event.Query]
				if !ok {
					zero = &model.QueryStat{Query: event.Query}
					zeroCounts[event.Query] = zero
				}
				zero.Count++
			}
		}

		clicks := event.ClickThroughs
		if len(clicks) == 0 {
			clicks = storedClicks[event.SearchID]
		}
		if len(clicks) > 0 {
			clickedSearches++
			reciprocalSum += 1 / float64(firstClickPosition(clicks))
			ndcgSum += eventNDCG(clicks)
			ndcgCount++
		}
	}

	sort.Float64s(latencies)
	metrics.UniqueSessions = int64(len(sessions))
	metrics.ResponseTimeP50 = percentile(latencies, 0.50)
	metrics.ResponseTimeP95 = percentile(latencies, 0.95)
	metrics.ResponseTimeP99 = percentile(latencies, 0.99)
	metrics.AvgResponseTime = totalLatency / float64(len(events))
	metrics.ClickThroughRate = float64(clickedSearches) / float64(len(events))
	if clickedSearches > 0 {
		metrics.MeanReciprocalRank = reciprocalSum / float64(clickedSearches)
	}
	if ndcgCount > 0 {
		metrics.NDCG = ndcgSum / float64(ndcgCount)
	}

	if hours := timeRange.End.Sub(timeRange.Start).Hours(); hours > 0 {
		metrics.SearchesPerHour = float64(len(events)) / hours
	}

	metrics.TopQueries = topQueryStats(queryCounts, 10)
	metrics.ZeroResultQueries = topQueryStats(zeroCounts, 10)

	return metrics, nil
}

// clicksBySearch 取时间范围内单独落盘的点击事件，按搜索ID分组
//
// 点击存储不可用时返回空表，指标计算退回只看事件自带的点击。
func (s *analyticsService) clicksBySearch(ctx context.Context, organizationID string, timeRange model.TimeRange) map[string][]model.ClickThrough {
	clickEvents, err := s.analyticsDAO.QueryClickEvents(ctx, organizationID, timeRange)
	if err != nil {
		s.logger.Warn(ctx, "Failed to query click events",
			logger.F("organizationID", organizationID),
			logger.F("error", err.Error()))
		return nil
	}

	grouped := make(map[string][]model.ClickThrough, len(clickEvents))
	for _, click := range clickEvents {
		grouped[click.SearchID] = append(grouped[click.SearchID], model.ClickThrough{
			DocumentID: click.DocumentID,
			Position:   click.Position,
			ClickedAt:  click.CreatedAt,
		})
	}
	return grouped
}

// firstClickPosition 取最早点击的结果位置，位置按1起算
func firstClickPosition(clicks []model.ClickThrough) int {
	first := clicks[0]
	for _, c := range clicks[1:] {
		if c.ClickedAt.Before(first.ClickedAt) {
			first = c
		}
	}
	if first.Position < 1 {
		return 1
	}
	return first.Position
}

// eventNDCG 单次搜索的归一化折损累计增益，点击视为相关
func eventNDCG(clicks []model.ClickThrough) float64 {
	var dcg float64
	for _, c := range clicks {
		pos := c.Position
		if pos < 1 {
			pos = 1
		}
		dcg += 1 / math.Log2(float64(pos)+1)
	}

	var idcg float64
	for i := 1; i <= len(clicks); i++ {
		idcg += 1 / math.Log2(float64(i)+1)
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

// percentile 取已排序样本的分位数
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topQueryStats 按出现次数降序取前N个查询，并把累计结果数换算为平均值
func topQueryStats(counts map[string]*model.QueryStat, limit int) []model.QueryStat {
	stats := make([]model.QueryStat, 0, len(counts))
	for _, stat := range counts {
		st := *stat
		if st.Count > 0 {
			st.AvgResults /= float64(st.Count)
		}
		stats = append(stats, st)
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Query < stats[j].Query
	})
	if len(stats) > limit {
		stats = stats[:limit]
	}
	return stats
}

// ============ 洞察规则 ============

// ComputeInsights 基于聚合指标运行洞察规则，每条洞察都带可执行建议
func (s *analyticsService) ComputeInsights(ctx context.Context, organizationID string, timeRange model.TimeRange) ([]model.SearchInsight, error) {
	metrics, err := s.ComputeMetrics(ctx, organizationID, timeRange)
	if err != nil {
		return nil, err
	}

	var insights []model.SearchInsight

	if metrics.AvgResponseTime > s.config.SlowResponseThresholdMs {
		insights = append(insights, model.SearchInsight{
			Type:   model.InsightSlowResponse,
			Impact: model.ImpactHigh,
			Description: fmt.Sprintf("Average search response time is %.0fms, above the %.0fms target",
				metrics.AvgResponseTime, s.config.SlowResponseThresholdMs),
			Recommendation: "Review index mapping and shard layout, and consider caching frequent queries",
		})
	}

	if metrics.TotalSearches > 0 && metrics.ClickThroughRate < s.config.LowCTRThreshold {
		insights = append(insights, model.SearchInsight{
			Type:   model.InsightLowCTR,
			Impact: model.ImpactMedium,
			Description: fmt.Sprintf("Click-through rate is %.1f%%, below the %.1f%% target",
				metrics.ClickThroughRate*100, s.config.LowCTRThreshold*100),
			Recommendation: "Tune field boosts and enable personalization to surface more relevant results",
		})
	}

	if len(metrics.ZeroResultQueries) > 0 {
		insights = append(insights, model.SearchInsight{
			Type:   model.InsightZeroResults,
			Impact: model.ImpactMedium,
			Description: fmt.Sprintf("%d distinct queries returned no results, led by %q",
				len(metrics.ZeroResultQueries), metrics.ZeroResultQueries[0].Query),
			Recommendation: "Add synonyms for these terms or verify the documents they target are indexed",
		})
	}

	if len(metrics.TopQueries) > 0 {
		insights = append(insights, model.SearchInsight{
			Type:   model.InsightPopularTerms,
			Impact: model.ImpactLow,
			Description: fmt.Sprintf("Most frequent query is %q with %d searches",
				metrics.TopQueries[0].Query, metrics.TopQueries[0].Count),
			Recommendation: "Consider promoting curated results or saved filters for the most frequent queries",
		})
	} else if hot := s.hotQueries(ctx, organizationID); len(hot) > 0 {
		// 事件还没落盘时退回实时热门查询计数
		insights = append(insights, model.SearchInsight{
			Type:   model.InsightPopularTerms,
			Impact: model.ImpactLow,
			Description: fmt.Sprintf("Live hot query counters are led by %q across %d tracked queries",
				hot[0], len(hot)),
			Recommendation: "Consider promoting curated results or saved filters for the most frequent queries",
		})
	}

	if metrics.SearchesPerHour > 0 {
		insights = append(insights, model.SearchInsight{
			Type:   model.InsightUsagePattern,
			Impact: model.ImpactLow,
			Description: fmt.Sprintf("Organization averages %.1f searches per hour across %d sessions",
				metrics.SearchesPerHour, metrics.UniqueSessions),
			Recommendation: "Use hourly volume to schedule reindexing during low-traffic windows",
		})
	}

	return insights, nil
}

// hotQueries 读取组织的实时热门查询排行，缓存不可用时返回空
func (s *analyticsService) hotQueries(ctx context.Context, organizationID string) []string {
	if s.cache == nil {
		return nil
	}
	hot, err := s.cache.GetHotQueries(ctx, organizationID, 5)
	if err != nil {
		s.logger.Debug(ctx, "Hot query lookup failed",
			logger.F("organizationID", organizationID),
			logger.F("error", err.Error()))
		return nil
	}
	return hot
}
