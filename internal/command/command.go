package command

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"osp/internal/aggregate"
	"osp/internal/model"
	"osp/internal/regcache"
	"osp/internal/views"
)

// Op is the closed set of operations the registry dispatches on.
type Op int

const (
	OpConsume Op = iota
	OpPersist
	OpRegister
	OpHealthCheck
	OpGetStats
	OpReset
	OpQueryCustomer
	OpQueryProduct
	OpQueryTimeline
)

func (op Op) String() string {
	switch op {
	case OpConsume:
		return "consume"
	case OpPersist:
		return "persist"
	case OpRegister:
		return "register"
	case OpHealthCheck:
		return "health-check"
	case OpGetStats:
		return "get-stats"
	case OpReset:
		return "reset"
	case OpQueryCustomer:
		return "query-customer"
	case OpQueryProduct:
		return "query-product"
	case OpQueryTimeline:
		return "query-timeline"
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// Command is one operation plus its arguments.
type Command struct {
	Op         Op
	Payload    []byte          // OpConsume: raw record value
	Envelope   *model.Envelope // OpRegister
	CustomerID int64           // OpQueryCustomer
	ProductID  string          // OpQueryProduct
	Limit      int             // OpQueryTimeline
}

// Result is the structured outcome every handler returns. Handlers never let
// errors escape into the poll loop.
type Result struct {
	Success  bool   `json:"success"`
	Skipped  bool   `json:"skipped,omitempty"`
	NotFound bool   `json:"not_found,omitempty"`
	Panicked bool   `json:"panicked,omitempty"`
	Error    string `json:"error,omitempty"`
	Data     any    `json:"data,omitempty"`
}

func failure(err error) Result { return Result{Success: false, Error: err.Error()} }

// Storage is the slice of the store adapter the handlers need. *store.Session
// satisfies it; tests substitute fakes.
type Storage interface {
	SaveViews(ctx context.Context, v aggregate.Views, processorID string) error
	SaveProcessingStats(ctx context.Context, table, processorID string, s model.ProcessingStats) error
	GetCustomerStats(ctx context.Context, customerID int64) (model.CustomerStats, error)
	GetProductStats(ctx context.Context, productID string) (model.ProductStats, error)
	GetTimeline(ctx context.Context, limit int) ([]model.TimelineEntry, error)
	GetRegisteredOrder(ctx context.Context, orderID string) (model.RegisteredOrder, error)
	SaveRegisteredOrder(ctx context.Context, ro model.RegisteredOrder) error
	AppendOrderUpdate(ctx context.Context, u model.OrderUpdate) error
	HealthCheck(ctx context.Context) error
}

// NotFoundChecker classifies absence-of-data errors, keeping this package
// free of the storage driver.
type NotFoundChecker func(error) bool

// Env threads shared state through the handlers: the storage session, the
// views container, the validator's registration cache, and configuration.
type Env struct {
	Store        Storage
	NotFound     NotFoundChecker
	Views        *views.Container
	Cache        regcache.Store // nil outside the validator role
	AggCfg       aggregate.Config
	ProcessorID  string
	StatsTable   string // processing_stats or validation_stats
	PersistViews bool   // materializer flushes full views; validator only stats
	Log          *zap.Logger
}

// nowMillis hook for deterministic registration timestamps in tests.
var nowMillis = func() int64 { return time.Now().UTC().UnixMilli() }

// Execute dispatches one command. This is the single point where processing
// failures become structured results instead of propagating.
func Execute(ctx context.Context, env *Env, cmd Command) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			env.Log.Error("command panicked",
				zap.Stringer("op", cmd.Op),
				zap.Any("panic", r))
			res = Result{Success: false, Panicked: true, Error: fmt.Sprintf("panic in %s: %v", cmd.Op, r)}
		}
	}()

	switch cmd.Op {
	case OpConsume:
		return consume(env, cmd.Payload)
	case OpPersist:
		return persist(ctx, env)
	case OpRegister:
		return register(ctx, env, cmd.Envelope)
	case OpHealthCheck:
		return healthCheck(ctx, env)
	case OpGetStats:
		return Result{Success: true, Data: env.Views.Load().Stats}
	case OpReset:
		env.Views.Reset()
		return Result{Success: true}
	case OpQueryCustomer:
		return queryCustomer(ctx, env, cmd.CustomerID)
	case OpQueryProduct:
		return queryProduct(ctx, env, cmd.ProductID)
	case OpQueryTimeline:
		return queryTimeline(ctx, env, cmd.Limit)
	}
	return Result{Success: false, Error: "unknown command"}
}

func consume(env *Env, payload []byte) Result {
	o, err := model.DecodeOrder(payload)
	if err != nil {
		env.Views.Update(func(v aggregate.Views) aggregate.Views {
			next := v.Clone()
			next.Stats.ErrorCount++
			return next
		})
		return failure(err)
	}
	env.Views.Update(func(v aggregate.Views) aggregate.Views {
		return aggregate.AggregateOrder(v, o, env.AggCfg)
	})
	return Result{Success: true, Data: o.OrderID}
}

func persist(ctx context.Context, env *Env) Result {
	if env.Store == nil {
		return Result{Success: false, Error: "no active storage session"}
	}
	v := env.Views.Load()
	var err error
	if env.PersistViews {
		err = env.Store.SaveViews(ctx, v, env.ProcessorID)
	} else {
		err = env.Store.SaveProcessingStats(ctx, env.StatsTable, env.ProcessorID, v.Stats)
	}
	if err != nil {
		return failure(err)
	}
	return Result{Success: true}
}

func healthCheck(ctx context.Context, env *Env) Result {
	if env.Store == nil {
		return Result{Success: false, Error: "no active storage session"}
	}
	stats := env.Views.Load().Stats
	if err := env.Store.HealthCheck(ctx); err != nil {
		return Result{Success: false, Error: err.Error(), Data: stats}
	}
	return Result{Success: true, Data: stats}
}

func queryCustomer(ctx context.Context, env *Env, customerID int64) Result {
	cs, err := env.Store.GetCustomerStats(ctx, customerID)
	if err != nil {
		if env.NotFound != nil && env.NotFound(err) {
			return Result{Success: false, NotFound: true, Error: "customer not found"}
		}
		return failure(err)
	}
	return Result{Success: true, Data: cs}
}

func queryProduct(ctx context.Context, env *Env, productID string) Result {
	ps, err := env.Store.GetProductStats(ctx, productID)
	if err != nil {
		if env.NotFound != nil && env.NotFound(err) {
			return Result{Success: false, NotFound: true, Error: "product not found"}
		}
		return failure(err)
	}
	return Result{Success: true, Data: ps}
}

func queryTimeline(ctx context.Context, env *Env, limit int) Result {
	tl, err := env.Store.GetTimeline(ctx, limit)
	if err != nil {
		return failure(err)
	}
	return Result{Success: true, Data: tl}
}
