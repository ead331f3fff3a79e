package service

import (
	"context"
	"encoding/json"
	"fmt"

	"opensign/apps/search-service/internal/model"
	"opensign/pkg/kafka"
	"opensign/pkg/logger"
)

// kafkaEventService Kafka事件发布实现
type kafkaEventService struct {
	producer *kafka.Producer
	logger   logger.Logger
}

// NewKafkaEventService 创建Kafka事件发布实例
func NewKafkaEventService(producer *kafka.Producer, log logger.Logger) EventService {
	return &kafkaEventService{
		producer: producer,
		logger:   log,
	}
}

// PublishSearchEvents 逐条发布搜索分析事件，首个发送失败即返回
func (s *kafkaEventService) PublishSearchEvents(events []*model.SearchAnalyticsEvent) error {
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to encode search event: %v", err)
		}
		if err := s.producer.SendMessage(model.TopicSearchEvents, []byte(event.OrganizationID), data); err != nil {
			return fmt.Errorf("failed to publish search event: %v", err)
		}
	}
	s.logger.Debug(context.Background(), "Published search events",
		logger.F("count", len(events)))
	return nil
}

// PublishClickEvent 发布点击事件
func (s *kafkaEventService) PublishClickEvent(event *model.SearchClickEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode click event: %v", err)
	}
	if err := s.producer.SendMessage(model.TopicClickEvents, []byte(event.OrganizationID), data); err != nil {
		return fmt.Errorf("failed to publish click event: %v", err)
	}
	return nil
}

// Close 关闭底层生产者
func (s *kafkaEventService) Close() error {
	return s.producer.Close()
}

// ============ 空实现 ============

// noopEventService 事件发布关闭时的空实现
type noopEventService struct{}

// NewNoopEventService 创建空事件发布实例
func NewNoopEventService() EventService {
	return &noopEventService{}
}

func (n *noopEventService) PublishSearchEvents(events []*model.SearchAnalyticsEvent) error {
	return nil
}

func (n *noopEventService) PublishClickEvent(event *model.SearchClickEvent) error {
	return nil
}

func (n *noopEventService) Close() error {
	return nil
}
