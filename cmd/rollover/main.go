package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/journal_server/config"
	"github.com/qs3c/journal_server/internal/database"
	"github.com/qs3c/journal_server/internal/pkg/cron"
	"github.com/qs3c/journal_server/internal/pkg/logging"
	"github.com/qs3c/journal_server/internal/pkg/metrics"
	"github.com/qs3c/journal_server/internal/service"
)

var (
	repairUser = flag.Int64("repair", 0, "Clear the progression lock of this user id after manual repair, then exit")
	batch      = flag.Int("batch", 0, "Rollover sweep batch size (0 uses ledger.sweep_batch)")
	timeout    = flag.Duration("timeout", 10*time.Minute, "Overall timeout")
)

func main() {
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	log := logging.NewLoggerWithService(cfg.Log, "rollover")

	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to connect database")
	}

	svc := service.NewServices(db, cfg, nil, metrics.NewCollector(prometheus.NewRegistry()), log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *repairUser > 0 {
		if err := svc.Accounts.RepairProgression(ctx, *repairUser); err != nil {
			log.WithError(err).WithField("user_id", *repairUser).Fatal("repair failed")
		}
		log.WithField("user_id", *repairUser).Info("progression lock cleared")
		return
	}

	ledgerCfg := cfg.Ledger
	if *batch > 0 {
		ledgerCfg.SweepBatch = *batch
	}

	// 单次执行：到期用户的月度重置，以及上一个调度周期内到期的权益
	started := time.Now()
	if err := cron.NewService(svc.Ledger, svc.Accounts, ledgerCfg, log).RunNow(ctx); err != nil {
		log.WithError(err).Fatal("rollover run failed")
	}
	log.WithField("elapsed", time.Since(started).String()).Info("rollover run complete")
}
