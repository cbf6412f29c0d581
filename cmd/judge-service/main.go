package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gavel/internal/common/cache"
	"gavel/internal/common/db"
	commonmw "gavel/internal/common/http/middleware"
	"gavel/internal/common/storage"
	judgeController "gavel/internal/judge/controller"
	"gavel/internal/judge/engine"
	"gavel/internal/judge/language"
	"gavel/internal/judge/memprobe"
	judgeRepo "gavel/internal/judge/repository"
	"gavel/internal/judge/runner"
	judgeSvc "gavel/internal/judge/service"
	problemRepo "gavel/internal/problem/repository"
	submitController "gavel/internal/submit/controller"
	submitRepo "gavel/internal/submit/repository"
	submitSvc "gavel/internal/submit/service"
	"gavel/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/gavel.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	languages, err := buildLanguages(appCfg.Languages)
	if err != nil {
		logger.Error(context.Background(), "build language registry failed", zap.Error(err))
		return
	}

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(context.Background(), "init minio failed", zap.Error(err))
		return
	}

	problems := problemRepo.NewProblemRepository(mysqlDB, redisCache)
	loadLanguageOverrides(languages, problems)
	logger.Info(context.Background(), "language registry ready",
		zap.Strings("languages", languages.Keys()))

	probe := memprobe.Detect()
	if !probe.Available() {
		logger.Warn(context.Background(), "memory probe unavailable, peak memory will not be reported")
	}
	eng := engine.New(runner.New(), probe, appCfg.Judge.WorkRoot)

	statusRepo := judgeRepo.NewStatusRepository(redisCache, appCfg.Status.TTL)
	resultRepo := judgeRepo.NewResultRepository(mysqlDB)
	submissions := submitRepo.NewSubmissionRepository(mysqlDB)

	judgeService, err := judgeSvc.NewService(judgeSvc.Config{
		Engine:         eng,
		StatusRepo:     statusRepo,
		ResultRepo:     resultRepo,
		Submissions:    submissions,
		WorkerPoolSize: appCfg.Worker.PoolSize,
		AcquireTimeout: appCfg.Worker.AcquireTimeout,
		StatusTimeout:  appCfg.Status.Timeout,
	})
	if err != nil {
		logger.Error(context.Background(), "init judge service failed", zap.Error(err))
		return
	}

	submitService, err := submitSvc.NewSubmitService(submitSvc.Config{
		SubmissionRepo:  submissions,
		ProblemRepo:     problems,
		Judge:           judgeService,
		Languages:       languages,
		Storage:         objStorage,
		Cache:           redisCache,
		SourceBucket:    appCfg.Source.Bucket,
		SourceKeyPrefix: appCfg.Source.KeyPrefix,
		MaxCodeBytes:    appCfg.Source.MaxCodeBytes,
		IdempotencyTTL:  appCfg.Submit.IdempotencyTTL,
		RateLimit: submitSvc.RateLimitConfig{
			UserMax: appCfg.Submit.RateLimit.UserMax,
			IPMax:   appCfg.Submit.RateLimit.IPMax,
			Window:  appCfg.Submit.RateLimit.Window,
		},
	})
	if err != nil {
		logger.Error(context.Background(), "init submit service failed", zap.Error(err))
		return
	}

	httpServer := buildHTTPServer(appCfg, judgeService, submitService, resultRepo, languages)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "judge http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

// loadLanguageOverrides lets database language rows override the static
// configuration; a missing or empty table is not an error.
func loadLanguageOverrides(registry *language.Registry, problems problemRepo.ProblemRepository) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rows, err := problems.ListLanguages(ctx)
	if err != nil {
		logger.Warn(ctx, "load language overrides failed", zap.Error(err))
		return
	}
	for _, row := range rows {
		registry.Put(language.Language{
			Key:                  row.Key,
			Name:                 row.Name,
			SourceExt:            row.SourceExt,
			CompileCommand:       language.TemplateFromJSON(row.CompileCommand),
			RunCommand:           language.TemplateFromJSON(row.RunCommand),
			Interpreted:          row.Interpreted,
			DefaultTimeLimitMs:   row.DefaultTimeLimitMs,
			DefaultMemoryLimitKB: row.DefaultMemoryLimitKB,
		})
	}
	if len(rows) > 0 {
		logger.Info(ctx, "language overrides loaded", zap.Int("count", len(rows)))
	}
}

func buildHTTPServer(cfg *AppConfig, judgeService *judgeSvc.Service, submitService *submitSvc.SubmitService, resultRepo *judgeRepo.ResultRepository, languages *language.Registry) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	jc := judgeController.NewJudgeController(judgeService, languages)
	sc := submitController.NewSubmitController(submitService, resultRepo)

	api := router.Group("/api/v1")
	api.Use(commonmw.AuthMiddleware(cfg.Auth.Secret, cfg.Auth.Issuer))
	api.POST("/submissions", sc.Create)
	api.GET("/submissions/:id", sc.Get)
	api.GET("/submissions/:id/status", jc.GetStatus)
	api.GET("/submissions/:id/events", jc.StreamStatus)
	api.POST("/run", jc.RunCode)

	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
