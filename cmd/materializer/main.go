package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"osp/internal/command"
	"osp/internal/config"
	"osp/internal/logger"
	"osp/internal/metrics"
	"osp/internal/processor"
)

func main() {
	cfg := readFlags()
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("materializer failed", zap.Error(err))
	}
}

func readFlags() config.Config {
	var cfg config.Config
	flag.StringVar(&cfg.Brokers, "brokers", config.EnvOr("BROKERS", "localhost:9092"), "kafka bootstrap servers")
	flag.StringVar(&cfg.GroupID, "group-id", config.EnvOr("GROUP_ID", "materializer"), "consumer group id")
	flag.StringVar(&cfg.ProcessorID, "processor-id", config.EnvOr("PROCESSOR_ID", "materializer-1"), "processor instance id")
	flag.StringVar(&cfg.OrdersTopic, "orders-topic", config.EnvOr("ORDERS_TOPIC", "orders"), "orders topic")
	flag.DurationVar(&cfg.PollTimeout, "poll-timeout", config.EnvOrDuration("POLL_TIMEOUT", time.Second), "broker poll timeout")
	flag.IntVar(&cfg.MaxPollRecords, "max-poll-records", config.EnvOrInt("MAX_POLL_RECORDS", 100), "max records per poll cycle")
	flag.DurationVar(&cfg.CommitInterval, "commit-interval", config.EnvOrDuration("COMMIT_INTERVAL", 5*time.Second), "persist and offset-commit interval")
	flag.StringVar(&cfg.StoreHosts, "store-hosts", config.EnvOr("STORE_HOSTS", "localhost:9042"), "column store contact points")
	flag.StringVar(&cfg.Keyspace, "keyspace", config.EnvOr("KEYSPACE", "orders_views"), "column store keyspace")
	flag.IntVar(&cfg.TimelineMax, "timeline-max", config.EnvOrInt("TIMELINE_MAX", 100), "timeline max size")
	flag.StringVar(&cfg.SnapshotDir, "snapshot-dir", config.EnvOr("SNAPSHOT_DIR", ""), "local snapshot directory (empty disables warm start)")
	flag.DurationVar(&cfg.SnapshotInterval, "snapshot-interval", config.EnvOrDuration("SNAPSHOT_INTERVAL", time.Minute), "local snapshot interval")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", config.EnvOr("METRICS_ADDR", ":8080"), "metrics/health listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", config.EnvOr("LOG_LEVEL", "info"), "log level")
	flag.Parse()
	return cfg
}

func run(cfg config.Config, log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	mreg := metrics.NewRegistry("materializer")
	p := processor.New(cfg, processor.RoleMaterializer, mreg, log)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		return err
	}
	serveOps(cfg.MetricsAddr, mreg, p, log)

	// Block until a termination signal, then run the stop sequence.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info("shutting down", zap.String("signal", s.String()))

	stopCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return p.Stop(stopCtx)
}

// serveOps exposes the operational seam: prometheus metrics plus the
// health-check and get-stats commands.
func serveOps(addr string, mreg *metrics.Registry, p *processor.Processor, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mreg.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		res := p.Do(r.Context(), command.Command{Op: command.OpHealthCheck})
		if !res.Success {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(res)
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(p.Do(r.Context(), command.Command{Op: command.OpGetStats}))
	})
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Warn("ops listener exited", zap.Error(err))
		}
	}()
}
