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
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/carlisting/internal/api/handlers"
	"github.com/langchou/carlisting/internal/auth"
	"github.com/langchou/carlisting/internal/config"
	"github.com/langchou/carlisting/internal/media"
	"github.com/langchou/carlisting/internal/repository"
	"github.com/langchou/carlisting/internal/service"
	"github.com/langchou/carlisting/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting car listing server",
		zap.String("port", cfg.ServerPort),
		zap.String("media_backend", cfg.MediaBackend),
		zap.String("session_backend", cfg.SessionBackend),
	)

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// 执行数据库迁移
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	carRepo := repository.NewCarRepository(db)

	// 会话存储
	sessions, closeSessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to init session store", zap.Error(err))
	}
	defer closeSessions()

	gate := auth.NewGate(logger, auth.StaticCredentials{
		Username: cfg.AdminUsername,
		Password: cfg.AdminPassword,
	}, sessions, cfg.SessionTTL)

	// 图片存储
	sink, localSink, err := newMediaSink(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("Failed to init media sink", zap.Error(err))
	}

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run(ctx)

	listing := service.NewListingService(logger, carRepo, sink, wsHub, cfg.RequirePhoto)

	wsHub.SetInitDataProvider(func() *ws.InitData {
		initCtx, initCancel := context.WithTimeout(ctx, 5*time.Second)
		defer initCancel()

		cars, err := listing.List(initCtx)
		if err != nil {
			return nil
		}
		return &ws.InitData{Cars: cars}
	})

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(logger, listing, gate, db, wsHub, handlers.Options{
		CookieSecure:   cfg.CookieSecure,
		MaxUploadBytes: cfg.MaxUploadBytes,
		CORSOrigins:    cfg.CORSOrigins,
	})

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handlers.RequestLogger(logger))
	router.Use(handler.CORS())
	router.MaxMultipartMemory = 1 << 20

	// 注册路由
	handler.RegisterRoutes(router)

	if localSink != nil {
		router.Static(localSink.URLPrefix(), localSink.Dir())
	}

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// 关闭 WebSocket 连接
	cancel()

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// newSessionStore 按配置创建会话存储，返回的 close 函数总是非 nil
func newSessionStore(ctx context.Context, cfg *config.Config) (auth.SessionStore, func(), error) {
	if cfg.SessionBackend != config.SessionBackendRedis {
		return auth.NewMemoryStore(), func() {}, nil
	}

	store := auth.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := store.Ping(pingCtx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return store, func() { store.Close() }, nil
}

// newMediaSink 按配置创建图片存储；本地存储时同时返回 *media.LocalSink 用于注册静态路由
func newMediaSink(ctx context.Context, logger *zap.Logger, cfg *config.Config) (media.Sink, *media.LocalSink, error) {
	if cfg.MediaBackend == config.MediaBackendS3 {
		sink, err := media.NewObjectStoreSink(logger, media.ObjectStoreConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Folder:    cfg.S3Folder,
			UseSSL:    cfg.S3UseSSL,
			PublicURL: cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, nil, err
		}

		bucketCtx, bucketCancel := context.WithTimeout(ctx, 10*time.Second)
		defer bucketCancel()
		if err := sink.EnsureBucket(bucketCtx); err != nil {
			return nil, nil, err
		}
		return sink, nil, nil
	}

	sink, err := media.NewLocalSink(logger, cfg.UploadDir, cfg.UploadURLPrefix, cfg.PublicBaseURL)
	if err != nil {
		return nil, nil, err
	}
	return sink, sink, nil
}
