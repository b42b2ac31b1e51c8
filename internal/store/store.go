package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"osp/internal/retry"
)

// ErrNotFound is returned when a keyed read matches no row.
var ErrNotFound = errors.New("not found")

// Config carries the column-store boundary settings.
type Config struct {
	Hosts    []string
	Keyspace string
	Timeout  time.Duration
}

// Session owns the single storage session of a processor instance. All writes
// go through CQL statements fixed at startup; gocql prepares each once and
// reuses the server-side prepared statement afterwards.
type Session struct {
	s   *gocql.Session
	log *zap.Logger
}

// Connect establishes the session with bounded exponential backoff. Exhausting
// the attempts is a fatal startup failure for the caller.
func Connect(ctx context.Context, cfg Config, rc retry.Config, log *zap.Logger) (*Session, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}

	var s *gocql.Session
	err := retry.Do(ctx, rc, func() error {
		var dialErr error
		s, dialErr = cluster.CreateSession()
		if dialErr != nil {
			log.Warn("store connect failed, will retry",
				zap.Strings("hosts", cfg.Hosts),
				zap.Error(dialErr))
		}
		return dialErr
	})
	if err != nil {
		return nil, fmt.Errorf("connect store %s: %w", strings.Join(cfg.Hosts, ","), err)
	}
	return &Session{s: s, log: log}, nil
}

// EnsureMaterializerSchema creates the materializer tables if missing. The
// keyspace itself is provisioned out of band.
func (st *Session) EnsureMaterializerSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders_by_customer (
			customer_id bigint PRIMARY KEY,
			total_orders bigint,
			total_spent double,
			last_order_id text,
			last_order_ts bigint,
			first_order_ts bigint
		)`,
		`CREATE TABLE IF NOT EXISTS orders_by_product (
			product_id text PRIMARY KEY,
			total_quantity bigint,
			total_revenue double,
			order_count bigint,
			avg_quantity double,
			last_order_ts bigint
		)`,
		`CREATE TABLE IF NOT EXISTS orders_timeline (
			bucket_id text,
			ts bigint,
			order_id text,
			customer_id bigint,
			product_id text,
			total double,
			status text,
			PRIMARY KEY (bucket_id, ts, order_id)
		) WITH CLUSTERING ORDER BY (ts DESC, order_id ASC)`,
		`CREATE TABLE IF NOT EXISTS processing_stats (
			processor_id text PRIMARY KEY,
			processed_count bigint,
			error_count bigint,
			last_processed_ts bigint
		)`,
	}
	return st.execAll(ctx, stmts)
}

// EnsureValidatorSchema creates the validator tables if missing.
func (st *Session) EnsureValidatorSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS registered_orders (
			order_id text PRIMARY KEY,
			customer_id bigint,
			product_id text,
			quantity bigint,
			unit_price double,
			total double,
			order_ts bigint,
			status text,
			validation_passed boolean,
			registered_at bigint,
			updated_at bigint,
			version bigint
		)`,
		`CREATE TABLE IF NOT EXISTS order_updates (
			order_id text,
			version bigint,
			previous_status text,
			new_status text,
			updated_at bigint,
			update_reason text,
			PRIMARY KEY (order_id, version)
		) WITH CLUSTERING ORDER BY (version DESC)`,
		`CREATE TABLE IF NOT EXISTS validation_stats (
			processor_id text PRIMARY KEY,
			processed_count bigint,
			error_count bigint,
			last_processed_ts bigint
		)`,
	}
	return st.execAll(ctx, stmts)
}

func (st *Session) execAll(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if err := st.s.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// HealthCheck runs a trivial read against the store.
func (st *Session) HealthCheck(ctx context.Context) error {
	var version string
	if err := st.s.Query(`SELECT release_version FROM system.local`).WithContext(ctx).Scan(&version); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

func (st *Session) Close() {
	if st.s != nil {
		st.s.Close()
	}
}

func mapErr(op string, err error) error {
	if errors.Is(err, gocql.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
