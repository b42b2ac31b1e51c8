package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config carries the boundary settings shared by both processor roles.
// Values come from flags with OSP_* environment defaults.
type Config struct {
	Brokers     string
	GroupID     string
	ProcessorID string

	OrdersTopic   string
	RegistryTopic string // validator role only

	PollTimeout    time.Duration
	MaxPollRecords int
	CommitInterval time.Duration

	StoreHosts  string // comma-separated contact points
	Keyspace    string
	TimelineMax int

	SnapshotDir      string
	SnapshotInterval time.Duration

	CacheDir     string // validator registration cache; empty = in-memory
	CacheBackend string // memory|pebble

	MetricsAddr string
	LogLevel    string
}

// Validate checks required boundary fields. Startup refuses to proceed on error.
func (c Config) Validate() error {
	if c.Brokers == "" {
		return errors.New("brokers are required")
	}
	if c.GroupID == "" {
		return errors.New("consumer group id is required")
	}
	if c.OrdersTopic == "" {
		return errors.New("orders topic is required")
	}
	if c.StoreHosts == "" {
		return errors.New("store contact points are required")
	}
	if c.Keyspace == "" {
		return errors.New("store keyspace is required")
	}
	if c.CommitInterval <= 0 {
		return errors.New("commit interval must be positive")
	}
	return nil
}

// EnvOr returns the OSP_* environment value for key, or def when unset.
func EnvOr(key, def string) string {
	if v := os.Getenv("OSP_" + key); v != "" {
		return v
	}
	return def
}

// EnvOrInt is EnvOr for integer settings; malformed values fall back to def.
func EnvOrInt(key string, def int) int {
	if v := os.Getenv("OSP_" + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// EnvOrDuration is EnvOr for duration settings (Go duration syntax).
func EnvOrDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv("OSP_" + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
