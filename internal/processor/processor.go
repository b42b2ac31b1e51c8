package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"osp/internal/aggregate"
	"osp/internal/command"
	"osp/internal/config"
	"osp/internal/metrics"
	"osp/internal/regcache"
	"osp/internal/retry"
	"osp/internal/snapshot"
	"osp/internal/store"
	"osp/internal/views"
)

// Role selects which transformation a processor instance applies.
type Role int

const (
	RoleMaterializer Role = iota
	RoleValidator
)

func (r Role) String() string {
	if r == RoleValidator {
		return "validator"
	}
	return "materializer"
}

// Lifecycle states.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

// transientSleep bounds how long the loop backs off after a transient
// poll/process failure before the next cycle.
const transientSleep = 500 * time.Millisecond

// stopJoinTimeout bounds how long Stop waits for the loop goroutine.
const stopJoinTimeout = 10 * time.Second

// recordConsumer is the slice of *ck.Consumer the loop needs; tests
// substitute fakes.
type recordConsumer interface {
	ReadMessage(timeout time.Duration) (*ck.Message, error)
	Commit() ([]ck.TopicPartition, error)
	Seek(partition ck.TopicPartition, ignoredTimeoutMs int) error
	SubscribeTopics(topics []string, cb ck.RebalanceCb) error
	Close() error
}

// envelopeProducer is the slice of *ck.Producer the validator needs.
type envelopeProducer interface {
	Produce(msg *ck.Message, deliveryChan chan ck.Event) error
	Events() chan ck.Event
	Flush(timeoutMs int) int
	Close()
}

// Processor owns one poll/process/commit loop plus its broker and storage
// handles. One instance, one loop goroutine.
type Processor struct {
	cfg  config.Config
	role Role
	log  *zap.Logger
	m    *metrics.Registry

	env      *command.Env
	st       *store.Session
	cache    regcache.Store
	consumer recordConsumer
	producer envelopeProducer
	snap     *snapshot.Snapshotter

	// inflight counts produced envelopes whose delivery reports have not
	// been drained yet; heldMu/held track the lowest offset per partition
	// that failed since the last commit. Offsets never commit past a held
	// record: persistAndCommit seeks back to it instead.
	inflight atomic.Int64
	heldMu   sync.Mutex
	held     map[string]ck.TopicPartition

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an unstarted processor.
func New(cfg config.Config, role Role, m *metrics.Registry, log *zap.Logger) *Processor {
	return &Processor{cfg: cfg, role: role, m: m, log: log}
}

func (p *Processor) State() State { return State(p.state.Load()) }

// Start walks STOPPED -> STARTING -> RUNNING: connect storage with bounded
// backoff, ensure schema, build the shared container (warm-started from a
// local snapshot when one exists), subscribe the consumer, and spawn the loop.
// Startup failures are fatal; nothing is retried once the backoff is spent.
func (p *Processor) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(Stopped), int32(Starting)) {
		return errors.New("processor already started")
	}

	st, err := store.Connect(ctx, store.Config{
		Hosts:    strings.Split(p.cfg.StoreHosts, ","),
		Keyspace: p.cfg.Keyspace,
	}, retry.DefaultConfig(), p.log)
	if err != nil {
		p.state.Store(int32(Stopped))
		return fmt.Errorf("start %s: %w", p.role, err)
	}
	p.st = st

	if p.role == RoleValidator {
		err = st.EnsureValidatorSchema(ctx)
	} else {
		err = st.EnsureMaterializerSchema(ctx)
	}
	if err != nil {
		st.Close()
		p.state.Store(int32(Stopped))
		return fmt.Errorf("start %s: %w", p.role, err)
	}

	container := views.NewContainer()
	statsTable := "processing_stats"
	if p.role == RoleValidator {
		statsTable = "validation_stats"
		if p.cache, err = openCache(p.cfg); err != nil {
			st.Close()
			p.state.Store(int32(Stopped))
			return fmt.Errorf("start %s: %w", p.role, err)
		}
	}

	if p.cfg.SnapshotDir != "" {
		p.snap = snapshot.NewSnapshotter(p.cfg.SnapshotDir)
		if v, m, rerr := p.snap.RestoreLatest(); rerr == nil {
			container.Store(v)
			p.log.Info("warm start from local snapshot",
				zap.String("snapshot_id", m.SnapshotID),
				zap.Int("customers", len(v.Customers)),
				zap.Int("timeline", len(v.Timeline)))
		} else if !errors.Is(rerr, snapshot.ErrNoSnapshot) {
			p.log.Warn("snapshot restore failed, starting cold", zap.Error(rerr))
		}
	}

	p.env = &command.Env{
		Store:        st,
		NotFound:     func(err error) bool { return errors.Is(err, store.ErrNotFound) },
		Views:        container,
		Cache:        p.cache,
		AggCfg:       aggregate.Config{TimelineMax: p.cfg.TimelineMax},
		ProcessorID:  p.cfg.ProcessorID,
		StatsTable:   statsTable,
		PersistViews: p.role == RoleMaterializer,
		Log:          p.log,
	}

	consumer, err := ck.NewConsumer(&ck.ConfigMap{
		"bootstrap.servers":  p.cfg.Brokers,
		"group.id":           p.cfg.GroupID,
		"enable.auto.commit": false,
		"auto.offset.reset":  "earliest",
	})
	if err != nil {
		p.closeHandles()
		p.state.Store(int32(Stopped))
		return fmt.Errorf("start %s: consumer: %w", p.role, err)
	}
	p.consumer = consumer

	topics := []string{p.cfg.OrdersTopic}
	if p.role == RoleValidator {
		topics = append(topics, p.cfg.RegistryTopic)
		p.producer, err = ck.NewProducer(&ck.ConfigMap{
			"bootstrap.servers":  p.cfg.Brokers,
			"enable.idempotence": true,
			"acks":               "all",
		})
		if err != nil {
			p.closeHandles()
			p.state.Store(int32(Stopped))
			return fmt.Errorf("start %s: producer: %w", p.role, err)
		}
		go p.drainEvents()
	}
	if err := consumer.SubscribeTopics(topics, nil); err != nil {
		p.closeHandles()
		p.state.Store(int32(Stopped))
		return fmt.Errorf("start %s: subscribe: %w", p.role, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.state.Store(int32(Running))
	go p.run(loopCtx)

	p.log.Info("processor started",
		zap.Stringer("role", p.role),
		zap.Strings("topics", topics),
		zap.String("group_id", p.cfg.GroupID))
	return nil
}

func openCache(cfg config.Config) (regcache.Store, error) {
	if cfg.CacheBackend == "pebble" && cfg.CacheDir != "" {
		return regcache.NewPebbleStore(cfg.CacheDir)
	}
	return regcache.NewMemoryStore(), nil
}

// run is the RUNNING state: bounded polls, per-record routing, and the
// deferred persist-then-commit on the commit-interval boundary. Offset commit
// is batched, not per-record: a bigger at-least-once replay window bought back
// by the idempotence guards in the folds and the registration diff.
func (p *Processor) run(ctx context.Context) {
	defer close(p.done)

	lastCommit := time.Now()
	lastSnapshot := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := p.pollBatch(ctx); err != nil {
			// Transient: log, count, sleep briefly, stay in RUNNING.
			p.log.Warn("poll cycle failed", zap.Error(err))
			p.m.Errors.Inc()
			select {
			case <-ctx.Done():
				return
			case <-time.After(transientSleep):
			}
		}

		p.m.LastCommitAgeSec.Set(time.Since(lastCommit).Seconds())
		if p.snap != nil {
			p.m.SnapshotAgeSec.Set(time.Since(lastSnapshot).Seconds())
		}
		if time.Since(lastCommit) >= p.cfg.CommitInterval {
			if p.persistAndCommit(ctx) {
				lastCommit = time.Now()
			}
		}

		if p.snap != nil && p.cfg.SnapshotInterval > 0 && time.Since(lastSnapshot) >= p.cfg.SnapshotInterval {
			p.writeSnapshot()
			lastSnapshot = time.Now()
		}
	}
}

// pollBatch reads up to MaxPollRecords records within the poll timeout and
// routes each one. A timeout with no records is a normal outcome.
func (p *Processor) pollBatch(ctx context.Context) error {
	limit := p.cfg.MaxPollRecords
	if limit <= 0 {
		limit = 1
	}
	timeout := p.cfg.PollTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	for i := 0; i < limit; i++ {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := p.consumer.ReadMessage(timeout)
		if err != nil {
			var kerr ck.Error
			if errors.As(err, &kerr) && kerr.Code() == ck.ErrTimedOut {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		p.route(ctx, msg)
	}
	return nil
}

func (p *Processor) route(ctx context.Context, msg *ck.Message) {
	if p.role == RoleValidator {
		p.routeValidator(ctx, msg)
		return
	}
	res := command.Execute(ctx, p.env, command.Command{Op: command.OpConsume, Payload: msg.Value})
	if res.Success {
		p.m.Processed.Inc()
	} else {
		p.m.Errors.Inc()
		p.log.Warn("record rejected", zap.String("error", res.Error))
	}
}

// holdOffset records the lowest offset per partition whose processing failed
// since the last commit. A held record is one the consumer must revisit, so
// committing at or past it would lose it.
func (p *Processor) holdOffset(tp ck.TopicPartition) {
	if tp.Topic == nil {
		return
	}
	key := fmt.Sprintf("%s/%d", *tp.Topic, tp.Partition)
	p.heldMu.Lock()
	defer p.heldMu.Unlock()
	if p.held == nil {
		p.held = make(map[string]ck.TopicPartition)
	}
	if cur, ok := p.held[key]; !ok || tp.Offset < cur.Offset {
		p.held[key] = tp
	}
}

func (p *Processor) takeHeld() []ck.TopicPartition {
	p.heldMu.Lock()
	defer p.heldMu.Unlock()
	if len(p.held) == 0 {
		return nil
	}
	out := make([]ck.TopicPartition, 0, len(p.held))
	for _, tp := range p.held {
		out = append(out, tp)
	}
	p.held = nil
	return out
}

// drainEvents consumes the producer's delivery reports for the lifetime of
// the producer. The loop ends when Close shuts the events channel.
func (p *Processor) drainEvents() {
	for e := range p.producer.Events() {
		switch ev := e.(type) {
		case *ck.Message:
			p.handleDeliveryReport(ev)
		case ck.Error:
			p.log.Warn("producer event", zap.String("error", ev.Error()))
		}
	}
}

// handleDeliveryReport settles one produced envelope. A failed report holds
// the source record's offset so the consumer seeks back and re-forwards it
// instead of committing past an envelope that never reached the broker.
func (p *Processor) handleDeliveryReport(ev *ck.Message) {
	p.inflight.Add(-1)
	if ev.TopicPartition.Error == nil {
		return
	}
	p.m.Errors.Inc()
	p.log.Warn("envelope delivery failed",
		zap.String("key", string(ev.Key)),
		zap.Error(ev.TopicPartition.Error))
	if src, ok := ev.Opaque.(ck.TopicPartition); ok {
		p.holdOffset(src)
	}
}

// persistAndCommit flushes accumulated state, then commits consumed offsets
// synchronously. Commit only happens after every forwarded envelope's delivery
// report has settled, any failed records have been rewound, and the persist
// succeeded; otherwise the same records replay later.
func (p *Processor) persistAndCommit(ctx context.Context) bool {
	t0 := time.Now()
	// The validator's forwarded envelopes must be on the broker before the
	// offsets that produced them are committed.
	if p.producer != nil {
		if left := p.producer.Flush(5000); left > 0 {
			p.log.Warn("producer flush incomplete, offsets not committed", zap.Int("outstanding", left))
			return false
		}
		if n := p.inflight.Load(); n != 0 {
			p.log.Warn("delivery reports unsettled, offsets not committed", zap.Int64("inflight", n))
			return false
		}
	}
	if held := p.takeHeld(); len(held) > 0 {
		for _, tp := range held {
			if err := p.consumer.Seek(tp, 0); err != nil {
				p.log.Warn("seek to held offset failed", zap.Error(err))
			}
		}
		p.log.Warn("rewound to failed offsets, offsets not committed", zap.Int("partitions", len(held)))
		return false
	}
	res := command.Execute(ctx, p.env, command.Command{Op: command.OpPersist})
	if !res.Success {
		p.log.Warn("persist failed, offsets not committed", zap.String("error", res.Error))
		p.m.Errors.Inc()
		return false
	}
	if _, err := p.consumer.Commit(); err != nil {
		var kerr ck.Error
		if errors.As(err, &kerr) && kerr.Code() == ck.ErrNoOffset {
			// Nothing consumed yet; the persist still counts.
			p.m.PersistLatency.Observe(time.Since(t0).Seconds())
			return true
		}
		p.log.Warn("offset commit failed", zap.Error(err))
		p.m.Errors.Inc()
		return false
	}
	p.m.PersistLatency.Observe(time.Since(t0).Seconds())
	p.log.Debug("persisted and committed", zap.Duration("took", time.Since(t0)))
	return true
}

func (p *Processor) writeSnapshot() {
	id := time.Now().UTC().Format("20060102T150405Z")
	if err := p.snap.Write(id, p.env.Views.Load()); err != nil {
		p.log.Warn("snapshot write failed", zap.Error(err))
		return
	}
	p.log.Debug("snapshot written", zap.String("snapshot_id", id))
}

// Do runs an operational command (get-stats, health-check, queries) against
// the shared container and storage session. Safe to call from goroutines other
// than the loop: reads go through the atomic snapshot.
func (p *Processor) Do(ctx context.Context, cmd command.Command) command.Result {
	if p.env == nil {
		return command.Result{Success: false, Error: "processor not started"}
	}
	return command.Execute(ctx, p.env, cmd)
}

// Stop walks RUNNING -> STOPPING -> STOPPED: cancel the loop, join it with a
// bounded wait, run one final persist-and-commit, then close producer,
// consumer, cache, and storage in that order.
func (p *Processor) Stop(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(Running), int32(Stopping)) {
		return errors.New("processor not running")
	}
	p.cancel()
	select {
	case <-p.done:
	case <-time.After(stopJoinTimeout):
		p.log.Warn("loop did not stop within timeout")
	}

	p.persistAndCommit(ctx)
	p.closeHandles()
	p.state.Store(int32(Stopped))
	p.log.Info("processor stopped", zap.Stringer("role", p.role))
	return nil
}

func (p *Processor) closeHandles() {
	if p.producer != nil {
		p.producer.Flush(5000)
		p.producer.Close()
		p.producer = nil
	}
	if p.consumer != nil {
		_ = p.consumer.Close()
		p.consumer = nil
	}
	if p.cache != nil {
		_ = p.cache.Close()
		p.cache = nil
	}
	if p.st != nil {
		p.st.Close()
		p.st = nil
	}
}
