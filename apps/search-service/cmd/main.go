package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"opensign/apps/search-service/internal/consumer"
	"opensign/apps/search-service/internal/dao"
	"opensign/apps/search-service/internal/handler"
	"opensign/apps/search-service/internal/model"
	"opensign/apps/search-service/internal/service"
	"opensign/pkg/database"
	"opensign/pkg/kafka"
	"opensign/pkg/logger"
	"opensign/pkg/redis"
	"opensign/pkg/telemetry"
)

const serviceName = "search-service"

func main() {
	// 初始化配置
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	// 初始化OpenTelemetry
	otelConfig := telemetry.DefaultConfig(serviceName)
	if exporter := cfg.GetString("search.telemetry.exporter"); exporter != "" {
		otelConfig.ExporterType = exporter
	}
	if err := telemetry.InitGlobal(otelConfig); err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.ShutdownGlobal(ctx); err != nil {
			log.Printf("Failed to shutdown OpenTelemetry: %v", err)
		}
	}()

	// 初始化日志
	logg := initLogger(cfg)
	logg.Info(context.Background(), "Starting search service")

	// 初始化数据库连接
	db, err := initDatabase(cfg, logg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// 建表
	if err := db.AutoMigrate(
		&model.SearchAnalyticsEvent{},
		&model.SearchClickEvent{},
		&model.SearchPersonalizationProfile{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// 初始化ElasticSearch客户端
	esClient, err := initElasticSearch(cfg, logg)
	if err != nil {
		log.Fatalf("Failed to initialize ElasticSearch: %v", err)
	}

	// 初始化Redis
	redisClient := redis.NewRedisClient(cfg.GetString("search.redis.addr"))
	defer redisClient.Close()

	// 初始化DAO层
	searchDAO := dao.NewElasticsearchDAO(esClient, logg)
	analyticsDAO := dao.NewAnalyticsDAO(db, logg)
	profileDAO := dao.NewProfileDAO(db, logg)

	// 确保索引存在
	if err := searchDAO.EnsureIndex(context.Background(), model.IndexDocuments); err != nil {
		log.Fatalf("Failed to ensure search index: %v", err)
	}

	// 初始化事件发布
	eventService := initEventService(cfg, logg)

	// 初始化服务层
	serviceConfig := initServiceConfig(cfg)
	cacheService := service.NewCacheService(redisClient, logg)
	searchService := service.NewSearchService(searchDAO, analyticsDAO, profileDAO, cacheService, eventService, serviceConfig, logg)

	// 初始化HTTP处理器
	httpHandler := handler.NewHTTPHandler(searchService, logg)

	// 启动索引消费者，消费其他服务发布的文档变更事件
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	if cfg.GetBool("search.kafka.enabled") {
		indexConsumer := consumer.NewIndexConsumer(searchService, logg)
		go func() {
			if err := indexConsumer.Start(consumerCtx, cfg.GetStringSlice("search.kafka.brokers")); err != nil {
				logg.Error(context.Background(), "Index consumer stopped",
					logger.F("error", err.Error()))
			}
		}()
	}

	// 初始化Gin引擎
	gin.SetMode(getGinMode(cfg))
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(corsMiddleware())
	router.Use(requestLoggerMiddleware(logg))

	httpHandler.RegisterRoutes(router)

	// 启动HTTP服务器
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.GetInt("search.server.port")),
		Handler: router,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	logg.Info(context.Background(), "Search service started",
		logger.F("http_port", cfg.GetInt("search.server.port")))

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info(context.Background(), "Shutting down search service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logg.Error(context.Background(), "HTTP server forced to shutdown",
			logger.F("error", err.Error()))
	}

	// 刷出未提交的分析事件并关闭事件生产者
	if err := searchService.Shutdown(ctx); err != nil {
		logg.Error(context.Background(), "Search service shutdown incomplete",
			logger.F("error", err.Error()))
	}

	logg.Info(context.Background(), "Search service stopped")
}

// initConfig 初始化配置
func initConfig() (*viper.Viper, error) {
	cfg := viper.New()

	cfg.SetConfigName("config")
	cfg.SetConfigType("yaml")
	cfg.AddConfigPath(".")
	cfg.AddConfigPath("..")
	cfg.AddConfigPath("../..")
	cfg.AddConfigPath("../../..")

	cfg.AutomaticEnv()

	// 默认值
	cfg.SetDefault("search.server.port", 21011)
	cfg.SetDefault("search.server.mode", "debug")
	cfg.SetDefault("search.elasticsearch.addresses", []string{"http://localhost:9200"})
	cfg.SetDefault("search.redis.addr", "localhost:6379")
	cfg.SetDefault("search.kafka.enabled", false)
	cfg.SetDefault("search.kafka.brokers", []string{"localhost:9092"})
	cfg.SetDefault("database.postgresql.dsn", "host=localhost user=postgres password=123456 dbname=opensign_search port=5432 sslmode=disable TimeZone=UTC")
	cfg.SetDefault("logger.level", "info")

	if err := cfg.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("Config file not found, using default values")
		} else {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
	}

	return cfg, nil
}

// initLogger 初始化日志
func initLogger(cfg *viper.Viper) logger.Logger {
	logLevel := cfg.GetString("logger.level")
	if logLevel == "" {
		logLevel = "info"
	}

	logg, err := logger.NewLogger(logLevel)
	if err != nil {
		return logger.GetLogger()
	}
	return logg
}

// initDatabase 初始化数据库
func initDatabase(cfg *viper.Viper, logg logger.Logger) (*database.PostgreSQL, error) {
	dsn := cfg.GetString("database.postgresql.dsn")

	db, err := database.NewPostgreSQL(dsn, "opensign_search")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	logg.Info(context.Background(), "Database connected successfully")
	return db, nil
}

// initElasticSearch 初始化ElasticSearch客户端
func initElasticSearch(cfg *viper.Viper, logg logger.Logger) (*elasticsearch.Client, error) {
	addresses := cfg.GetStringSlice("search.elasticsearch.addresses")
	if len(addresses) == 0 {
		addresses = []string{"http://localhost:9200"}
	}

	esConfig := elasticsearch.Config{
		Addresses: addresses,
		Username:  cfg.GetString("search.elasticsearch.username"),
		Password:  cfg.GetString("search.elasticsearch.password"),
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create ElasticSearch client: %v", err)
	}

	// 测试连接
	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ElasticSearch: %v", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("ElasticSearch connection error: %s", res.String())
	}

	logg.Info(context.Background(), "ElasticSearch connected successfully")
	return client, nil
}

// initEventService 初始化事件发布，Kafka未启用时使用空实现
func initEventService(cfg *viper.Viper, logg logger.Logger) service.EventService {
	if !cfg.GetBool("search.kafka.enabled") {
		return service.NewNoopEventService()
	}

	producer, err := kafka.InitProducer(cfg.GetStringSlice("search.kafka.brokers"))
	if err != nil {
		logg.Warn(context.Background(), "Failed to initialize Kafka producer, events disabled",
			logger.F("error", err.Error()))
		return service.NewNoopEventService()
	}

	logg.Info(context.Background(), "Kafka producer initialized")
	return service.NewKafkaEventService(producer, logg)
}

// initServiceConfig 初始化服务配置，配置文件只覆盖显式给出的项
func initServiceConfig(cfg *viper.Viper) *service.ServiceConfig {
	sc := service.DefaultServiceConfig()

	if cfg.IsSet("search.search_config.default_page_size") {
		sc.DefaultPageSize = cfg.GetInt("search.search_config.default_page_size")
	}
	if cfg.IsSet("search.search_config.max_page_size") {
		sc.MaxPageSize = cfg.GetInt("search.search_config.max_page_size")
	}
	if cfg.IsSet("search.search_config.cache.enabled") {
		sc.CacheEnabled = cfg.GetBool("search.search_config.cache.enabled")
	}
	if cfg.IsSet("search.features.intent_recognition") {
		sc.EnableIntentRecognition = cfg.GetBool("search.features.intent_recognition")
	}
	if cfg.IsSet("search.features.query_expansion") {
		sc.EnableQueryExpansion = cfg.GetBool("search.features.query_expansion")
	}
	if cfg.IsSet("search.features.spell_correction") {
		sc.EnableSpellCorrection = cfg.GetBool("search.features.spell_correction")
	}
	if cfg.IsSet("search.features.personalization") {
		sc.EnablePersonalization = cfg.GetBool("search.features.personalization")
	}
	if cfg.IsSet("search.features.semantic_ranking") {
		sc.EnableSemanticRanking = cfg.GetBool("search.features.semantic_ranking")
	}
	if cfg.IsSet("search.features.facets") {
		sc.EnableFacets = cfg.GetBool("search.features.facets")
	}
	if cfg.IsSet("search.features.suggestions") {
		sc.EnableSuggestions = cfg.GetBool("search.features.suggestions")
	}
	if cfg.IsSet("search.features.analytics") {
		sc.EnableAnalytics = cfg.GetBool("search.features.analytics")
	}
	if cfg.IsSet("search.analytics.batch_size") {
		sc.AnalyticsBatchSize = cfg.GetInt("search.analytics.batch_size")
	}
	if cfg.IsSet("search.analytics.flush_interval") {
		sc.AnalyticsFlushInterval = cfg.GetDuration("search.analytics.flush_interval")
	}
	sc.EventEnabled = cfg.GetBool("search.kafka.enabled")

	return sc
}

// getGinMode 获取Gin模式
func getGinMode(cfg *viper.Viper) string {
	mode := cfg.GetString("search.server.mode")
	switch mode {
	case "release", "prod", "production":
		return gin.ReleaseMode
	case "test", "testing":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}

// corsMiddleware CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Organization-ID, X-User-ID, X-Session-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLoggerMiddleware 请求日志中间件
func requestLoggerMiddleware(logg logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		logg.Info(c.Request.Context(), "HTTP request completed",
			logger.F("method", c.Request.Method),
			logger.F("path", c.Request.URL.Path),
			logger.F("status_code", c.Writer.Status()),
			logger.F("duration_ms", duration.Milliseconds()),
			logger.F("client_ip", c.ClientIP()))
	}
}
