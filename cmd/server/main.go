package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aurum/internal/advisor"
	"aurum/internal/config"
	"aurum/internal/gateway/binance"
	"aurum/internal/gateway/database"
	"aurum/internal/gateway/provider"
	"aurum/internal/gateway/research"
	"aurum/internal/logger"
	"aurum/internal/transport/http/analyze"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := flag.String("config", "config.toml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Errorf("配置加载失败: %v", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.LogLLMPayload)

	providers := provider.BuildProvidersFromConfig(cfg.AI.Models, cfg.AI.AITimeout())
	model, err := provider.Primary(providers)
	if err != nil {
		logger.Errorf("推理服务初始化失败: %v", err)
		os.Exit(1)
	}
	logger.Infof("使用模型 provider: %s", model.ID())

	oracle := binance.New(binance.Config{
		RESTBaseURL: cfg.Market.RESTBaseURL,
		HTTPTimeout: time.Duration(cfg.Market.TimeoutSeconds) * time.Second,
		QuoteAsset:  cfg.Market.QuoteAsset,
	})
	searcher := research.NewClient(research.Config{
		APIURL:     cfg.Search.APIURL,
		APIKey:     cfg.Search.APIKey,
		MaxResults: cfg.Search.MaxResults,
		Depth:      cfg.Search.Depth,
		Timeout:    time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
	})

	// 运行日志可选：打不开数据库就只跑内存流程。
	var runStore analyze.RunStore
	var runHistory analyze.RunHistory
	store, err := database.NewRunLogStore(cfg.Database.Path)
	if err != nil {
		logger.Warnf("运行日志存储不可用: %v", err)
	} else {
		runStore = store
		runHistory = store
		defer store.Close()
	}

	engine := advisor.NewEngine(advisor.Config{
		Benchmarks:          cfg.Analysis.Benchmarks,
		Temperature:         cfg.AI.Temperature,
		MaxResearchSteps:    cfg.Analysis.MaxResearchSteps,
		MaxDiscoverySymbols: cfg.Analysis.MaxDiscoverySymbols,
		PriceConcurrency:    cfg.Analysis.PriceConcurrency,
		ResponseLanguage:    cfg.Analysis.ResponseLanguage,
		DefaultGoal:         cfg.Analysis.DefaultGoal,
		Validator: advisor.ValidatorConfig{
			MinNotional:      cfg.Analysis.MinNotional,
			PositionFraction: cfg.Analysis.PositionFraction,
			MinPositionFloor: cfg.Analysis.MinPositionFloor,
			MaxLeverage:      cfg.Analysis.MaxLeverage,
			QuoteAsset:       cfg.Market.QuoteAsset,
		},
	}, model, oracle, searcher)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	analyze.RegisterHealth(router)
	api := router.Group("/api")
	analyze.NewRouter(engine, runStore, runHistory).Register(api)

	srv := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: router,
	}
	go func() {
		logger.Infof("服务启动: %s", cfg.Server.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("服务异常退出: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("收到退出信号，开始优雅关闭")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warnf("关闭超时: %v", err)
	}
}
