package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"matchbox/api/httpserver"
	"matchbox/config"
	entrywal "matchbox/infra/wal/entry"
	exitwal "matchbox/infra/wal/exit"
	"matchbox/infra/kafka"
	"matchbox/jobs/broadcaster"
	"matchbox/jobs/marketdata"
	"matchbox/logging"
	"matchbox/monitoring"
	"matchbox/service"
)

func main() {
	// ---------------- Config & Logger ----------------

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.Production)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	monitoring.InitMetrics()

	// ---------------- Entry WAL ----------------

	entryWAL, err := entrywal.Open(entrywal.Config{
		Dir:         cfg.EntryWALDir,
		SegmentSize: cfg.WALSegmentSize,
		SyncEvery:   cfg.WALSyncEvery,
	})
	if err != nil {
		log.Fatal("entry WAL init failed", zap.Error(err))
	}
	defer entryWAL.Close()

	// ---------------- Trade Outbox ----------------

	outbox, err := exitwal.Open(cfg.OutboxDir)
	if err != nil {
		log.Fatal("outbox init failed", zap.Error(err))
	}
	defer outbox.Close()

	// ---------------- Service ----------------

	svc := service.New(service.Config{
		Symbols:    cfg.Instruments,
		AutoCreate: cfg.AutoCreate,
	}, entryWAL, outbox, log)

	// ---------------- Recovery ----------------

	snapSeq, err := svc.LoadSnapshot(cfg.SnapshotDir)
	if err != nil {
		log.Fatal("snapshot load failed", zap.Error(err))
	}
	if err := svc.Replay(cfg.EntryWALDir, snapSeq); err != nil {
		log.Fatal("WAL replay failed", zap.Error(err))
	}

	// ---------------- Background Jobs ----------------

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.StartEpochJob(ctx, cfg.EpochInterval)
	svc.StartSnapshotJob(ctx, cfg.SnapshotDir, cfg.SnapshotInterval)

	if cfg.KafkaEnabled {
		bc, err := broadcaster.New(outbox, cfg.KafkaBrokers, cfg.TradesTopic, log)
		if err != nil {
			log.Fatal("broadcaster init failed", zap.Error(err))
		}
		defer bc.Close()
		bc.Start(ctx)

		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.MarketDataTopic)
		defer producer.Close()
		md := marketdata.New(svc.Engine(), producer, cfg.MarketDataPeriod, cfg.MarketDataDepth, log)
		md.Start(ctx)
	}

	// ---------------- HTTP API ----------------

	api := httpserver.New(svc, log)
	api.Start(ctx)

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Routes(),
	}

	go func() {
		log.Info("matchbox engine running", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server exited", zap.Error(err))
		}
	}()

	// ---------------- Graceful Shutdown ----------------

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
}
