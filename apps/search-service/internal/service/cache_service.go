package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"opensign/apps/search-service/internal/model"
	"opensign/pkg/logger"
	"opensign/pkg/redis"
)

// cacheService Redis缓存服务实现
type cacheService struct {
	client *redis.RedisClient
	logger logger.Logger
}

// NewCacheService 创建缓存服务实例
func NewCacheService(client *redis.RedisClient, log logger.Logger) CacheService {
	return &cacheService{
		client: client,
		logger: log,
	}
}

// GetSearchResult 读取搜索结果缓存
func (s *cacheService) GetSearchResult(ctx context.Context, key string) (*model.SearchResult, error) {
	data, err := s.client.Get(ctx, model.CacheKeySearchResult+key)
	if err != nil {
		if err == goredis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get cached search result: %v", err)
	}

	var result model.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached search result: %v", err)
	}
	return &result, nil
}

// SetSearchResult 写入搜索结果缓存
func (s *cacheService) SetSearchResult(ctx context.Context, key string, result *model.SearchResult, ttl int) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode search result: %v", err)
	}
	return s.client.Set(ctx, model.CacheKeySearchResult+key, data, time.Duration(ttl)*time.Second)
}

// GetSuggestions 读取建议缓存
func (s *cacheService) GetSuggestions(ctx context.Context, key string) ([]model.SearchSuggestion, error) {
	data, err := s.client.Get(ctx, model.CacheKeySuggestions+key)
	if err != nil {
		if err == goredis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get cached suggestions: %v", err)
	}

	var suggestions []model.SearchSuggestion
	if err := json.Unmarshal([]byte(data), &suggestions); err != nil {
		return nil, fmt.Errorf("failed to decode cached suggestions: %v", err)
	}
	return suggestions, nil
}

// SetSuggestions 写入建议缓存
func (s *cacheService) SetSuggestions(ctx context.Context, key string, suggestions []model.SearchSuggestion, ttl int) error {
	data, err := json.Marshal(suggestions)
	if err != nil {
		return fmt.Errorf("failed to encode suggestions: %v", err)
	}
	return s.client.Set(ctx, model.CacheKeySuggestions+key, data, time.Duration(ttl)*time.Second)
}

// GetProfile 读取个性化档案缓存
func (s *cacheService) GetProfile(ctx context.Context, userID, organizationID string) (*model.SearchPersonalizationProfile, error) {
	data, err := s.client.Get(ctx, profileCacheKey(userID, organizationID))
	if err != nil {
		if err == goredis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get cached profile: %v", err)
	}

	var profile model.SearchPersonalizationProfile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, fmt.Errorf("failed to decode cached profile: %v", err)
	}
	return &profile, nil
}

// SetProfile 写入个性化档案缓存
func (s *cacheService) SetProfile(ctx context.Context, profile *model.SearchPersonalizationProfile, ttl int) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %v", err)
	}
	return s.client.Set(ctx, profileCacheKey(profile.UserID, profile.OrganizationID), data, time.Duration(ttl)*time.Second)
}

// InvalidateProfile 档案更新后失效缓存
func (s *cacheService) InvalidateProfile(ctx context.Context, userID, organizationID string) error {
	return s.client.Del(ctx, profileCacheKey(userID, organizationID))
}

// IncrementHotQuery 累加组织内查询热度计数
func (s *cacheService) IncrementHotQuery(ctx context.Context, organizationID, query string) error {
	if query == "" {
		return nil
	}
	key := model.CacheKeyHotQueries + organizationID
	if err := s.client.ZIncrBy(ctx, key, 1, query); err != nil {
		return fmt.Errorf("failed to increment hot query: %v", err)
	}
	return s.client.Expire(ctx, key, time.Duration(model.DefaultHotQueriesTTL)*time.Second)
}

// GetHotQueries 按热度降序取组织内热门查询
func (s *cacheService) GetHotQueries(ctx context.Context, organizationID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = model.MaxSuggestions
	}
	return s.client.ZRevRange(ctx, model.CacheKeyHotQueries+organizationID, 0, int64(limit-1))
}

func profileCacheKey(userID, organizationID string) string {
	return model.CacheKeyProfile + organizationID + ":" + userID
}
