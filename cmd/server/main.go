// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"nexusmind-go/internal/brain"
	"nexusmind-go/internal/config"
	"nexusmind-go/internal/handler"
	"nexusmind-go/internal/middleware"
	"nexusmind-go/internal/model"
	"nexusmind-go/internal/pipeline"
	"nexusmind-go/internal/rag"
	"nexusmind-go/internal/repository"
	"nexusmind-go/internal/service"
	"nexusmind-go/internal/splitter"
	"nexusmind-go/pkg/database"
	"nexusmind-go/pkg/embedding"
	"nexusmind-go/pkg/kafka"
	"nexusmind-go/pkg/llm"
	"nexusmind-go/pkg/log"
	"nexusmind-go/pkg/storage"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 与对象存储
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err := database.DB.AutoMigrate(&model.FileRecord{}); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	store, err := newStorage(cfg)
	if err != nil {
		log.Fatalf("对象存储初始化失败: %v", err)
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	fileRepo := repository.NewFileRepository(database.DB, database.RDB)

	// 5. 初始化 Service (依赖注入)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)

	brains := brain.NewManager(store, embeddingClient, brain.GenerationConfig{
		LLMModelName: cfg.Brain.LLMModelName,
		Temperature:  cfg.Brain.Temperature,
		MaxTokens:    cfg.Brain.MaxTokens,
	})
	orchestrator := rag.New(llmClient, cfg.RAG.TopK)

	// 按扩展名注册文件处理器：.txt 走逐行切块，.md 走策略切块
	settings := splitter.Settings{
		ChunkSize:     cfg.Chunking.ChunkSize,
		ChunkOverlap:  cfg.Chunking.ChunkOverlap,
		Separator:     cfg.Chunking.Separator,
		Strategy:      splitter.Strategy(cfg.Chunking.Strategy),
		AutoThreshold: cfg.Chunking.AutoThreshold,
	}
	registry := splitter.NewRegistry()
	registry.Register(".txt", splitter.NewLineProcessor(store))
	registry.Register(".md", splitter.NewTextProcessor(store, settings))

	brainService := service.NewBrainService(brains)
	ingestService := service.NewIngestService(store, fileRepo, registry)
	chatService := service.NewChatService(brains, orchestrator)

	// 6. 初始化摄取管道 (Processor)
	processor := pipeline.NewProcessor(brains, registry, fileRepo)

	// 7. 启动后台 Kafka 消费者
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.APIKeyAuth(cfg.APIKeys))
	{
		// Brain 路由组
		brainsGroup := apiV1.Group("/brains")
		{
			brainHandler := handler.NewBrainHandler(brainService)
			brainsGroup.POST("", brainHandler.CreateBrain)
			brainsGroup.GET("/:brain_id", brainHandler.GetBrain)
			brainsGroup.PUT("/:brain_id", brainHandler.RenameBrain)
			brainsGroup.GET("/:brain_id/history", brainHandler.GetHistory)

			ingestHandler := handler.NewIngestHandler(ingestService)
			brainsGroup.GET("/:brain_id/files", ingestHandler.ListFiles)
		}

		// Ingest 路由组
		files := apiV1.Group("/files")
		{
			ingestHandler := handler.NewIngestHandler(ingestService)
			files.POST("/upload", ingestHandler.UploadFile)
			files.GET("/:file_id/status", ingestHandler.GetTaskStatus)
		}

		// Chat 路由
		chatHandler := handler.NewChatHandler(chatService)
		apiV1.POST("/chat", chatHandler.Chat)
		apiV1.GET("/chat/ws", chatHandler.HandleWebSocket)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// 在优雅停机逻辑中，我们不需要手动关闭 Kafka 消费者，
	// 因为 StartConsumer 是一个循环，会在程序退出时自然结束。
	log.Info("服务已优雅关闭")
}

// newStorage 按配置装配持久化后端。
func newStorage(cfg config.Config) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "local":
		return storage.NewLocal(cfg.Storage.BasePath)
	case "minio":
		return storage.NewMinIO(cfg.MinIO)
	default:
		return nil, fmt.Errorf("未知的存储后端: %s", cfg.Storage.Backend)
	}
}
