package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/qs3c/journal_server/config"
	"github.com/qs3c/journal_server/internal/api"
	"github.com/qs3c/journal_server/internal/api/handler"
	"github.com/qs3c/journal_server/internal/database"
	"github.com/qs3c/journal_server/internal/pkg/cron"
	"github.com/qs3c/journal_server/internal/pkg/logging"
	"github.com/qs3c/journal_server/internal/pkg/metrics"
	"github.com/qs3c/journal_server/internal/pkg/oss"
	"github.com/qs3c/journal_server/internal/pkg/pubsub"
	"github.com/qs3c/journal_server/internal/pkg/ws"
	"github.com/qs3c/journal_server/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "config file path")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	log := logging.NewLoggerWithService(cfg.Log, "server")

	// 初始化数据库
	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to connect database")
	}
	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("failed to migrate database")
	}
	log.WithField("driver", cfg.Database.Driver).Info("database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.WithError(err).Fatal("failed to connect redis")
	}
	log.Info("redis connected")

	// 用户文件只存 OSS
	ossClient, err := oss.NewClient(&cfg.OSS)
	if err != nil {
		log.WithError(err).Fatal("failed to init OSS client")
	}

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	publisher := pubsub.NewPublisher(rdb, cfg.Queue.EventChannel)
	svc := service.NewServices(db, cfg, publisher, collector, log)
	uploadService := service.NewUploadService(ossClient, svc.Ledger, cfg, log)

	hub := ws.NewHub(log)
	subscriber := pubsub.NewSubscriber(rdb, cfg.Queue.EventChannel)
	scheduler := cron.NewService(svc.Ledger, svc.Accounts, cfg.Ledger, log)

	router := api.NewRouter(
		handler.NewQuotaHandler(svc.Ledger, svc.Activity),
		handler.NewUploadHandler(uploadService, cfg),
		handler.NewPromoHandler(svc.Promo),
		handler.NewProgressHandler(svc.Activity),
		handler.NewAdminHandler(svc.Promo, svc.Accounts),
		handler.NewWebSocketHandler(hub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins, log),
		cfg,
		log,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler.Start()
	defer scheduler.Stop()

	g, ctx := errgroup.WithContext(ctx)

	// 成长事件经 Redis 广播，worker 进程产生的事件也能推给本进程的连接
	g.Go(func() error {
		err := subscriber.Subscribe(ctx, hub.PushEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server exited with error")
	}
	if err := rdb.Close(); err != nil {
		log.WithError(err).Warn("failed to close redis")
	}
	log.Info("server stopped")
}
