package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/chatstack/chatstack/internal/ai"
	"github.com/chatstack/chatstack/internal/config"
	"github.com/chatstack/chatstack/internal/db"
	"github.com/chatstack/chatstack/internal/filestore"
	"github.com/chatstack/chatstack/internal/handler"
	"github.com/chatstack/chatstack/internal/ingest"
	"github.com/chatstack/chatstack/internal/job"
	"github.com/chatstack/chatstack/internal/middleware"
	"github.com/chatstack/chatstack/internal/repo"
	"github.com/chatstack/chatstack/internal/schedule"
	"github.com/chatstack/chatstack/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "chatstack",
		Short: "chatstack chatbot backend server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run chatstack server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			database, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(database); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, database)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, database *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("file_store", cfg.FileStore.Type),
	)

	agentRepo := repo.NewAgentRepo(database)
	kbRepo := repo.NewKnowledgeBaseRepo(database)
	docRepo := repo.NewDocumentRepo(database)
	chunkRepo := repo.NewChunkRepo(database)
	convRepo := repo.NewConversationRepo(database)
	msgRepo := repo.NewMessageRepo(database)
	triggerRepo := repo.NewTriggerRepo(database)

	aiProvider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	generator := ai.NewGenerator(aiProvider, cfg.AI.Model)
	embedder := ai.NewEmbedder(aiProvider, cfg.AI.EmbedModel, cfg.AI.EmbedDimension)

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	fetcher := ingest.NewFetcher(cfg.Crawler)
	crawler := ingest.NewCrawler(fetcher, cfg.Crawler)

	agentService := service.NewAgentService(agentRepo, triggerRepo)
	ingestService := service.NewIngestService(agentRepo, kbRepo, docRepo, chunkRepo, embedder, fetcher, crawler, store, cfg.Ingest)
	retrievalService := service.NewRetrievalService(kbRepo, chunkRepo, embedder, generator, cfg.Retrieval)
	triggerService := service.NewTriggerService(triggerRepo)
	chatService := service.NewChatService(agentRepo, convRepo, msgRepo, retrievalService, triggerService, generator)

	deps := handler.RouterDeps{
		Agents:        handler.NewAgentHandler(agentService),
		Knowledge:     handler.NewKnowledgeHandler(ingestService),
		Chat:          handler.NewChatHandler(chatService),
		Conversations: handler.NewConversationHandler(chatService),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllow),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewEmbeddingBackfillJob(ingestService, 20), cfg.BackfillCron); err != nil {
		return fmt.Errorf("schedule backfill job: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
