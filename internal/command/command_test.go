package command

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"osp/internal/aggregate"
	"osp/internal/model"
	"osp/internal/regcache"
	"osp/internal/views"
)

var errFakeNotFound = errors.New("fake not found")

// fakeStorage implements Storage in memory and counts calls.
type fakeStorage struct {
	regs       map[string]model.RegisteredOrder
	updates    []model.OrderUpdate
	getCalls   int
	viewsSaved int
	statsSaved int
	failSave   bool
	failHealth bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{regs: make(map[string]model.RegisteredOrder)}
}

func (f *fakeStorage) SaveViews(_ context.Context, _ aggregate.Views, _ string) error {
	if f.failSave {
		return errors.New("save failed")
	}
	f.viewsSaved++
	return nil
}

func (f *fakeStorage) SaveProcessingStats(_ context.Context, _, _ string, _ model.ProcessingStats) error {
	if f.failSave {
		return errors.New("save failed")
	}
	f.statsSaved++
	return nil
}

func (f *fakeStorage) GetCustomerStats(_ context.Context, id int64) (model.CustomerStats, error) {
	if id == 404 {
		return model.CustomerStats{}, errFakeNotFound
	}
	return model.CustomerStats{CustomerID: id, TotalOrders: 3}, nil
}

func (f *fakeStorage) GetProductStats(_ context.Context, id string) (model.ProductStats, error) {
	if id == "missing" {
		return model.ProductStats{}, errFakeNotFound
	}
	return model.ProductStats{ProductID: id, OrderCount: 2}, nil
}

func (f *fakeStorage) GetTimeline(_ context.Context, _ int) ([]model.TimelineEntry, error) {
	return []model.TimelineEntry{{OrderID: "O1"}}, nil
}

func (f *fakeStorage) GetRegisteredOrder(_ context.Context, orderID string) (model.RegisteredOrder, error) {
	f.getCalls++
	ro, ok := f.regs[orderID]
	if !ok {
		return model.RegisteredOrder{}, errFakeNotFound
	}
	return ro, nil
}

func (f *fakeStorage) SaveRegisteredOrder(_ context.Context, ro model.RegisteredOrder) error {
	if f.failSave {
		return errors.New("save failed")
	}
	f.regs[ro.OrderID] = ro
	return nil
}

func (f *fakeStorage) AppendOrderUpdate(_ context.Context, u model.OrderUpdate) error {
	f.updates = append(f.updates, u)
	return nil
}

func (f *fakeStorage) HealthCheck(_ context.Context) error {
	if f.failHealth {
		return errors.New("store unreachable")
	}
	return nil
}

func testEnv(st Storage) *Env {
	return &Env{
		Store:        st,
		NotFound:     func(err error) bool { return errors.Is(err, errFakeNotFound) },
		Views:        views.NewContainer(),
		Cache:        regcache.NewMemoryStore(),
		AggCfg:       aggregate.Config{TimelineMax: 10},
		ProcessorID:  "test-1",
		StatsTable:   "validation_stats",
		PersistViews: true,
		Log:          zap.NewNop(),
	}
}

func passedEnvelope(orderID, status string, qty int64, total float64) *model.Envelope {
	return &model.Envelope{
		Order: model.Order{
			OrderID:    orderID,
			CustomerID: 1,
			ProductID:  "P1",
			Quantity:   qty,
			UnitPrice:  total / float64(qty),
			Total:      total,
			Timestamp:  1000,
			Status:     status,
		},
		Result:    model.Verdict{OrderID: orderID, Passed: true},
		Timestamp: 2000,
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	res := Execute(context.Background(), testEnv(newFakeStorage()), Command{Op: Op(42)})
	if res.Success || res.Error != "unknown command" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestConsume_GoodRecord(t *testing.T) {
	env := testEnv(newFakeStorage())
	payload := []byte(`{"order_id":"O1","customer_id":1,"product_id":"P1","quantity":5,"unit_price":10.0,"total":50.0,"timestamp":1000,"status":"pending"}`)

	res := Execute(context.Background(), env, Command{Op: OpConsume, Payload: payload})
	if !res.Success {
		t.Fatalf("consume failed: %+v", res)
	}
	v := env.Views.Load()
	if v.Customers[1].TotalOrders != 1 || v.Stats.ProcessedCount != 1 {
		t.Fatalf("views not updated: %+v", v)
	}
}

func TestConsume_MalformedRecord(t *testing.T) {
	env := testEnv(newFakeStorage())
	res := Execute(context.Background(), env, Command{Op: OpConsume, Payload: []byte(`garbage`)})
	if res.Success {
		t.Fatalf("expected failure")
	}
	if env.Views.Load().Stats.ErrorCount != 1 {
		t.Fatalf("error count should increment")
	}
}

func TestPersist_NoSession(t *testing.T) {
	env := testEnv(newFakeStorage())
	env.Store = nil
	res := Execute(context.Background(), env, Command{Op: OpPersist})
	if res.Success || res.Error != "no active storage session" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestPersist_RoleRouting(t *testing.T) {
	st := newFakeStorage()
	env := testEnv(st)

	res := Execute(context.Background(), env, Command{Op: OpPersist})
	if !res.Success || st.viewsSaved != 1 {
		t.Fatalf("materializer persist should save views: %+v calls=%d", res, st.viewsSaved)
	}

	env.PersistViews = false
	res = Execute(context.Background(), env, Command{Op: OpPersist})
	if !res.Success || st.statsSaved != 1 {
		t.Fatalf("validator persist should save only stats: %+v calls=%d", res, st.statsSaved)
	}
}

func TestRegister_Lifecycle(t *testing.T) {
	old := nowMillis
	defer func() { nowMillis = old }()
	nowMillis = func() int64 { return 5000 }

	st := newFakeStorage()
	env := testEnv(st)
	ctx := context.Background()

	// First registration: pending + passed becomes accepted, version 1.
	res := Execute(ctx, env, Command{Op: OpRegister, Envelope: passedEnvelope("O1", model.StatusPending, 5, 50.0)})
	if !res.Success || res.Skipped {
		t.Fatalf("first register: %+v", res)
	}
	ro := st.regs["O1"]
	if ro.Version != 1 || ro.Status != model.StatusAccepted || ro.RegisteredAt != 5000 {
		t.Fatalf("unexpected registration: %+v", ro)
	}

	// Identical re-registration is a no-op.
	res = Execute(ctx, env, Command{Op: OpRegister, Envelope: passedEnvelope("O1", model.StatusPending, 5, 50.0)})
	if !res.Success || !res.Skipped {
		t.Fatalf("replay should skip: %+v", res)
	}
	if len(st.updates) != 0 || st.regs["O1"].Version != 1 {
		t.Fatalf("no-op replay mutated state: %+v", st.regs["O1"])
	}

	// Status change: version 2 plus one history row.
	res = Execute(ctx, env, Command{Op: OpRegister, Envelope: passedEnvelope("O1", model.StatusDenied, 5, 50.0)})
	if !res.Success || res.Skipped {
		t.Fatalf("status change should update: %+v", res)
	}
	ro = st.regs["O1"]
	if ro.Version != 2 || ro.Status != model.StatusDenied {
		t.Fatalf("unexpected updated registration: %+v", ro)
	}
	if len(st.updates) != 1 {
		t.Fatalf("want 1 history row, got %d", len(st.updates))
	}
	u := st.updates[0]
	if u.PreviousStatus != model.StatusAccepted || u.NewStatus != model.StatusDenied || u.Version != 2 {
		t.Fatalf("unexpected history row: %+v", u)
	}
}

func TestRegister_CacheShortCircuit(t *testing.T) {
	st := newFakeStorage()
	env := testEnv(st)
	ctx := context.Background()

	e := passedEnvelope("O9", model.StatusPending, 2, 20.0)
	if res := Execute(ctx, env, Command{Op: OpRegister, Envelope: e}); !res.Success {
		t.Fatalf("first register: %+v", res)
	}
	callsAfterInsert := st.getCalls

	// Identical replay: the cache answers, no store read.
	if res := Execute(ctx, env, Command{Op: OpRegister, Envelope: e}); !res.Skipped {
		t.Fatalf("replay should skip")
	}
	if st.getCalls != callsAfterInsert {
		t.Fatalf("cache hit should not read the store: %d -> %d", callsAfterInsert, st.getCalls)
	}
}

func TestRegister_CacheMissFallsThrough(t *testing.T) {
	st := newFakeStorage()
	env := testEnv(st)
	env.Cache = regcache.NewMemoryStore()
	ctx := context.Background()

	// Seed the store directly, bypassing the cache.
	st.regs["O5"] = model.RegisteredOrder{OrderID: "O5", Status: model.StatusAccepted, Quantity: 1, Total: 10.0, Version: 1}

	res := Execute(ctx, env, Command{Op: OpRegister, Envelope: passedEnvelope("O5", model.StatusPending, 1, 10.0)})
	if !res.Success || !res.Skipped {
		t.Fatalf("identical order should skip after store read: %+v", res)
	}
	if st.getCalls != 1 {
		t.Fatalf("cache miss must read the store exactly once, got %d", st.getCalls)
	}
}

func TestHealthCheck(t *testing.T) {
	st := newFakeStorage()
	env := testEnv(st)
	if res := Execute(context.Background(), env, Command{Op: OpHealthCheck}); !res.Success {
		t.Fatalf("healthy store reported unhealthy: %+v", res)
	}
	st.failHealth = true
	res := Execute(context.Background(), env, Command{Op: OpHealthCheck})
	if res.Success {
		t.Fatalf("unhealthy store reported healthy")
	}
	if res.Data == nil {
		t.Fatalf("health result should still carry stats")
	}
}

func TestGetStatsAndReset(t *testing.T) {
	env := testEnv(newFakeStorage())
	payload := []byte(`{"order_id":"O1","customer_id":1,"product_id":"P1","quantity":5,"unit_price":10.0,"total":50.0,"timestamp":1000,"status":"pending"}`)
	Execute(context.Background(), env, Command{Op: OpConsume, Payload: payload})

	res := Execute(context.Background(), env, Command{Op: OpGetStats})
	stats, ok := res.Data.(model.ProcessingStats)
	if !ok || stats.ProcessedCount != 1 {
		t.Fatalf("unexpected stats: %+v", res)
	}

	Execute(context.Background(), env, Command{Op: OpReset})
	res = Execute(context.Background(), env, Command{Op: OpGetStats})
	if stats := res.Data.(model.ProcessingStats); stats.ProcessedCount != 0 {
		t.Fatalf("reset did not zero stats: %+v", stats)
	}
}

func TestQueryCustomer_NotFound(t *testing.T) {
	env := testEnv(newFakeStorage())
	res := Execute(context.Background(), env, Command{Op: OpQueryCustomer, CustomerID: 404})
	if res.Success || !res.NotFound {
		t.Fatalf("missing customer should map to not-found: %+v", res)
	}
	res = Execute(context.Background(), env, Command{Op: OpQueryCustomer, CustomerID: 1})
	if !res.Success {
		t.Fatalf("query failed: %+v", res)
	}
}

func TestQueryTimeline(t *testing.T) {
	env := testEnv(newFakeStorage())
	res := Execute(context.Background(), env, Command{Op: OpQueryTimeline, Limit: 10})
	if !res.Success {
		t.Fatalf("query failed: %+v", res)
	}
	tl, ok := res.Data.([]model.TimelineEntry)
	if !ok || len(tl) != 1 {
		t.Fatalf("unexpected timeline: %+v", res.Data)
	}
}

func TestShouldUpdateOrder(t *testing.T) {
	existing := model.RegisteredOrder{Status: model.StatusAccepted, Quantity: 5, Total: 50.0}
	if ShouldUpdateOrder(existing, model.StatusAccepted, 5, 50.0) {
		t.Fatalf("identical fields should not update")
	}
	if !ShouldUpdateOrder(existing, model.StatusDenied, 5, 50.0) {
		t.Fatalf("status change should update")
	}
	if !ShouldUpdateOrder(existing, model.StatusAccepted, 6, 50.0) {
		t.Fatalf("quantity change should update")
	}
	if !ShouldUpdateOrder(existing, model.StatusAccepted, 5, 60.0) {
		t.Fatalf("total change should update")
	}
}

type panickyStorage struct {
	*fakeStorage
}

func (p *panickyStorage) GetRegisteredOrder(context.Context, string) (model.RegisteredOrder, error) {
	panic("corrupt registration row")
}

func TestExecuteRecoversHandlerPanic(t *testing.T) {
	env := testEnv(&panickyStorage{fakeStorage: newFakeStorage()})
	res := Execute(context.Background(), env, Command{Op: OpRegister, Envelope: passedEnvelope("O-1", model.StatusPending, 5, 50.0)})
	if res.Success {
		t.Fatalf("panicking handler must not report success: %+v", res)
	}
	if !res.Panicked {
		t.Fatalf("panic must be surfaced structurally: %+v", res)
	}
	if res.Error == "" {
		t.Fatalf("panic message missing from result")
	}
}
