package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/journal_server/config"
	"github.com/qs3c/journal_server/internal/database"
	"github.com/qs3c/journal_server/internal/pkg/logging"
	"github.com/qs3c/journal_server/internal/pkg/metrics"
	"github.com/qs3c/journal_server/internal/pkg/pubsub"
	"github.com/qs3c/journal_server/internal/pkg/queue"
	"github.com/qs3c/journal_server/internal/service"
	"github.com/qs3c/journal_server/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file path")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	log := logging.NewLoggerWithService(cfg.Log, "worker")

	// 初始化数据库
	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to connect database")
	}
	log.Info("database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.WithError(err).Fatal("failed to connect redis")
	}
	defer rdb.Close()
	log.Info("redis connected")

	// 事件经 Redis 发布，由 server 进程推送给在线连接
	publisher := pubsub.NewPublisher(rdb, cfg.Queue.EventChannel)
	svc := service.NewServices(db, cfg, publisher, metrics.NewCollector(prometheus.DefaultRegisterer), log)

	activityQueue := queue.NewQueue(rdb, cfg.Queue.ActivityQueue)
	processor := worker.NewProcessor(svc.Activity, activityQueue, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := processor.Run(ctx, cfg.Queue.MaxWorkers); err != nil {
		log.WithError(err).Error("worker exited with error")
	}
	log.Info("worker shutdown complete")
}
