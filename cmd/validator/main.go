package main

import (
	"context"
	"encoding/json"
	"errors"
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
		log.Fatal("validator failed", zap.Error(err))
	}
}

func readFlags() config.Config {
	var cfg config.Config
	flag.StringVar(&cfg.Brokers, "brokers", config.EnvOr("BROKERS", "localhost:9092"), "kafka bootstrap servers")
	flag.StringVar(&cfg.GroupID, "group-id", config.EnvOr("GROUP_ID", "validator"), "consumer group id")
	flag.StringVar(&cfg.ProcessorID, "processor-id", config.EnvOr("PROCESSOR_ID", "validator-1"), "processor instance id")
	flag.StringVar(&cfg.OrdersTopic, "orders-topic", config.EnvOr("ORDERS_TOPIC", "orders"), "orders topic")
	flag.StringVar(&cfg.RegistryTopic, "registry-topic", config.EnvOr("REGISTRY_TOPIC", "orders.registry"), "derived registry topic")
	flag.DurationVar(&cfg.PollTimeout, "poll-timeout", config.EnvOrDuration("POLL_TIMEOUT", time.Second), "broker poll timeout")
	flag.IntVar(&cfg.MaxPollRecords, "max-poll-records", config.EnvOrInt("MAX_POLL_RECORDS", 100), "max records per poll cycle")
	flag.DurationVar(&cfg.CommitInterval, "commit-interval", config.EnvOrDuration("COMMIT_INTERVAL", 5*time.Second), "persist and offset-commit interval")
	flag.StringVar(&cfg.StoreHosts, "store-hosts", config.EnvOr("STORE_HOSTS", "localhost:9042"), "column store contact points")
	flag.StringVar(&cfg.Keyspace, "keyspace", config.EnvOr("KEYSPACE", "orders_registry"), "column store keyspace")
	flag.StringVar(&cfg.CacheBackend, "cache-backend", config.EnvOr("CACHE_BACKEND", "memory"), "registration cache backend: memory|pebble")
	flag.StringVar(&cfg.CacheDir, "cache-dir", config.EnvOr("CACHE_DIR", "./data/regcache"), "registration cache directory for pebble")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", config.EnvOr("METRICS_ADDR", ":8081"), "metrics/health listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", config.EnvOr("LOG_LEVEL", "info"), "log level")
	flag.Parse()
	return cfg
}

var errMissingRegistryTopic = errors.New("registry topic is required")

func run(cfg config.Config, log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.RegistryTopic == "" {
		return errMissingRegistryTopic
	}
	mreg := metrics.NewRegistry("validator")
	p := processor.New(cfg, processor.RoleValidator, mreg, log)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		return err
	}
	serveOps(cfg.MetricsAddr, mreg, p, log)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info("shutting down", zap.String("signal", s.String()))

	stopCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return p.Stop(stopCtx)
}

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
