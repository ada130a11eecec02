package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/agent-pulse/internal/analysis"
	"github.com/xela07ax/agent-pulse/internal/handler"
	"github.com/xela07ax/agent-pulse/internal/hub"
	"github.com/xela07ax/agent-pulse/internal/infra"
	"github.com/xela07ax/agent-pulse/internal/infra/auth"
	"github.com/xela07ax/agent-pulse/internal/metrics"
	"github.com/xela07ax/agent-pulse/internal/poller"
	"github.com/xela07ax/agent-pulse/internal/repository/sqlite"
	"github.com/xela07ax/agent-pulse/internal/server"
	"github.com/xela07ax/agent-pulse/internal/service"
	"github.com/xela07ax/agent-pulse/internal/throttle"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	// 2. Инфраструктура и ресурсы
	storage, err := sqlite.NewStorage(cfg.Storage.Path)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer storage.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := storage.Ping(pingCtx); err != nil {
		logger.Fatal("storage unreachable", zap.Error(err))
	}
	pingCancel()

	// Redis опционален: без него троттлинг чисто локальный (L1)
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	// Метрики
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	// Экспортируем метрики для Prometheus на отдельном порту
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
			logger.Error("metrics listener failed", zap.Error(err))
		}
	}()

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Realtime-слой: хаб рассылки и доставка ответов агентам
	broadcastHub := hub.NewHub(storage, m, logger)
	broadcastHub.Start()

	notifier := hub.NewNotifier(cfg.Notify.Timeout, logger)

	// 4. Пайплайн алертов: троттлинг → анализ
	gate := throttle.NewGuard(cfg.Throttle.Window, rdb, logger)
	trigger := analysis.NewTrigger(cfg.Analysis.Script, cfg.Analysis.Timeout, gate, m, logger)

	// 5. Сервисный слой (Dependency Injection)
	eventService := service.NewEventService(storage, broadcastHub, notifier, m, logger)
	alertService := service.NewAlertService(storage, broadcastHub, trigger, cfg.Polling.ErrorThreshold, logger)
	themeService := service.NewThemeService(storage, logger)

	// Авторизация операторов включается только при наличии ключей
	var validator auth.TokenValidator
	var authHandler *handler.AuthHandler
	if cfg.Auth.Enabled() {
		pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			logger.Fatal("invalid auth public key", zap.Error(err))
		}
		validator = auth.NewBaseValidator(pubKey)

		if len(cfg.Auth.PrivateKey) > 0 {
			privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
			if err != nil {
				logger.Fatal("invalid auth private key", zap.Error(err))
			}
			authService := service.NewAuthService(storage, privKey, cfg.Auth.TokenTTL)
			authHandler = handler.NewAuthHandler(authService)
		}
	}

	// 6. Фоновый поллер ошибок
	esClient := poller.NewElasticClient(cfg.Elasticsearch.URL, cfg.Elasticsearch.Index, logger)
	if err := esClient.WaitReady(appCtx); err != nil {
		// Не фатально: хранилище логов может подняться позже
		logger.Warn("elasticsearch not ready at startup", zap.Error(err))
	}

	errPoller := poller.NewPoller(
		esClient,
		alertService,
		cfg.Polling.ServiceList(),
		cfg.Polling.ErrorThreshold,
		cfg.Polling.TimeWindow,
		cfg.Polling.Interval(),
		m,
		logger,
	)

	var bg sync.WaitGroup
	bg.Add(1)
	go func() {
		defer bg.Done()
		errPoller.Run(appCtx)
	}()

	// 7. HTTP Server
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Handler: server.NewServer(
			cfg,
			logger,
			validator,
			handler.NewEventHandler(eventService, logger),
			handler.NewAlertHandler(alertService, logger),
			handler.NewStreamHandler(broadcastHub, logger),
			handler.NewThemeHandler(themeService, logger),
			authHandler,
			m,
		),
	}

	go func() {
		logger.Info("agent-pulse started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-stop // Ждем сигнал
	logger.Info("agent-pulse stopping...")

	// Сначала гасим таймер поллера, чтобы не начать цикл посреди остановки
	cancel()
	bg.Wait()

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	// Хаб последним: дорассылает хвост очереди и закрывает клиентов
	broadcastHub.Stop()
	logger.Info("agent-pulse exited properly")
}
