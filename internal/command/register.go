package command

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"osp/internal/model"
	"osp/internal/regcache"
)

// registeredStatus maps an incoming order's status to the status recorded in
// the registry: a passed order still marked pending becomes accepted; every
// other status is recorded as-is.
func registeredStatus(o model.Order, passed bool) string {
	if passed && o.Status == model.StatusPending {
		return model.StatusAccepted
	}
	return o.Status
}

// ShouldUpdateOrder is the registration idempotence diff: true iff status,
// quantity, or total actually changed.
func ShouldUpdateOrder(existing model.RegisteredOrder, status string, quantity int64, total float64) bool {
	return existing.Status != status ||
		existing.Quantity != quantity ||
		math.Abs(existing.Total-total) > 1e-9
}

func register(ctx context.Context, env *Env, envl *model.Envelope) Result {
	if envl == nil {
		return Result{Success: false, Error: "register: nil envelope"}
	}
	if env.Store == nil {
		return Result{Success: false, Error: "no active storage session"}
	}
	o := envl.Order
	status := registeredStatus(o, envl.Result.Passed)

	// Cache hit with no diff short-circuits the store read entirely.
	if env.Cache != nil {
		if e, ok := env.Cache.Get(o.OrderID); ok {
			if !ShouldUpdateOrder(model.RegisteredOrder{Status: e.Status, Quantity: e.Quantity, Total: e.Total}, status, o.Quantity, o.Total) {
				return Result{Success: true, Skipped: true, Data: e.Version}
			}
		}
	}

	existing, err := env.Store.GetRegisteredOrder(ctx, o.OrderID)
	switch {
	case err == nil:
		return updateRegistration(ctx, env, existing, o, status)
	case env.NotFound != nil && env.NotFound(err):
		return insertRegistration(ctx, env, envl, status)
	default:
		return failure(err)
	}
}

func insertRegistration(ctx context.Context, env *Env, envl *model.Envelope, status string) Result {
	o := envl.Order
	now := nowMillis()
	ro := model.RegisteredOrder{
		OrderID:          o.OrderID,
		CustomerID:       o.CustomerID,
		ProductID:        o.ProductID,
		Quantity:         o.Quantity,
		UnitPrice:        o.UnitPrice,
		Total:            o.Total,
		Timestamp:        o.Timestamp,
		Status:           status,
		ValidationPassed: envl.Result.Passed,
		RegisteredAt:     now,
		UpdatedAt:        now,
		Version:          1,
	}
	if err := env.Store.SaveRegisteredOrder(ctx, ro); err != nil {
		return failure(err)
	}
	cachePut(env, ro)
	env.Log.Info("order registered",
		zap.String("order_id", ro.OrderID),
		zap.String("status", ro.Status))
	return Result{Success: true, Data: ro}
}

func updateRegistration(ctx context.Context, env *Env, existing model.RegisteredOrder, o model.Order, status string) Result {
	if !ShouldUpdateOrder(existing, status, o.Quantity, o.Total) {
		cachePut(env, existing)
		return Result{Success: true, Skipped: true, Data: existing.Version}
	}
	next := existing
	next.Quantity = o.Quantity
	next.UnitPrice = o.UnitPrice
	next.Total = o.Total
	next.Status = status
	next.Version = existing.Version + 1
	next.UpdatedAt = nowMillis()

	if err := env.Store.SaveRegisteredOrder(ctx, next); err != nil {
		return failure(err)
	}
	upd := model.OrderUpdate{
		OrderID:        next.OrderID,
		Version:        next.Version,
		PreviousStatus: existing.Status,
		NewStatus:      next.Status,
		UpdatedAt:      next.UpdatedAt,
		UpdateReason:   updateReason(existing, next),
	}
	if err := env.Store.AppendOrderUpdate(ctx, upd); err != nil {
		return failure(err)
	}
	cachePut(env, next)
	env.Log.Info("registration updated",
		zap.String("order_id", next.OrderID),
		zap.Int64("version", next.Version),
		zap.String("previous_status", existing.Status),
		zap.String("new_status", next.Status))
	return Result{Success: true, Data: next}
}

func updateReason(prev, next model.RegisteredOrder) string {
	if prev.Status != next.Status {
		return fmt.Sprintf("status changed from %s to %s", prev.Status, next.Status)
	}
	return "quantity or total changed"
}

func cachePut(env *Env, ro model.RegisteredOrder) {
	if env.Cache == nil {
		return
	}
	err := env.Cache.Put(ro.OrderID, regcache.Entry{
		Status:   ro.Status,
		Quantity: ro.Quantity,
		Total:    ro.Total,
		Version:  ro.Version,
	})
	if err != nil {
		env.Log.Warn("registration cache write failed", zap.Error(err))
	}
}
