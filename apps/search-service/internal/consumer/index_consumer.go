package consumer

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"

	"opensign/apps/search-service/internal/model"
	"opensign/apps/search-service/internal/service"
	"opensign/pkg/kafka"
	"opensign/pkg/logger"
)

// 文档变更事件动作
const (
	ActionIndex  = "index"
	ActionDelete = "delete"

	// TopicDocumentEvents 平台各服务发布文档变更的Topic
	TopicDocumentEvents = "document-index-events"
)

// DocumentEvent 文档变更事件
type DocumentEvent struct {
	Action     string                `json:"action"`
	Document   *model.SearchDocument `json:"document,omitempty"`
	DocumentID string                `json:"document_id,omitempty"`
	EntityType string                `json:"entity_type,omitempty"`
}

// IndexConsumer 索引消费者
//
// 消费平台内其他服务发布的文档变更事件并同步到搜索索引，
// 解析失败或业务处理失败的消息不重试，避免毒消息阻塞分区。
type IndexConsumer struct {
	searchService service.SearchService
	consumer      *kafka.Consumer
	logger        logger.Logger
}

// NewIndexConsumer 创建索引消费者
func NewIndexConsumer(searchService service.SearchService, log logger.Logger) *IndexConsumer {
	return &IndexConsumer{
		searchService: searchService,
		logger:        log,
	}
}

// Start 启动消费
func (c *IndexConsumer) Start(ctx context.Context, brokers []string) error {
	cfg := kafka.KafkaConfig{
		Brokers: brokers,
		GroupID: "search-index-consumer-group",
		Topics:  []string{TopicDocumentEvents},
	}

	consumer, err := kafka.InitConsumer(cfg, c)
	if err != nil {
		return err
	}
	c.consumer = consumer

	c.logger.Info(ctx, "Index consumer started",
		logger.F("topic", TopicDocumentEvents))
	return c.consumer.StartConsuming(ctx)
}

// HandleMessage 实现 kafka.ConsumerHandler 接口
func (c *IndexConsumer) HandleMessage(msg *sarama.ConsumerMessage) error {
	ctx := context.Background()

	var event DocumentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Warn(ctx, "Failed to decode document event, skipping",
			logger.F("topic", msg.Topic),
			logger.F("offset", msg.Offset),
			logger.F("error", err.Error()))
		return nil
	}

	switch event.Action {
	case ActionIndex:
		if event.Document == nil {
			c.logger.Warn(ctx, "Index event without document, skipping",
				logger.F("offset", msg.Offset))
			return nil
		}
		if err := c.searchService.IndexDocument(ctx, event.Document); err != nil {
			c.logger.Error(ctx, "Failed to index document from event",
				logger.F("documentID", event.Document.ID),
				logger.F("error", err.Error()))
		}
	case ActionDelete:
		if err := c.searchService.DeleteDocument(ctx, event.DocumentID, event.EntityType); err != nil {
			c.logger.Error(ctx, "Failed to delete document from event",
				logger.F("documentID", event.DocumentID),
				logger.F("error", err.Error()))
		}
	default:
		c.logger.Warn(ctx, "Unknown document event action, skipping",
			logger.F("action", event.Action))
	}

	return nil
}
