package aggregate

import (
	"time"

	"osp/internal/model"
)

// Config controls the folds. TimelineMax caps the recent-activity view.
type Config struct {
	TimelineMax int
}

// DefaultTimelineMax is used when Config.TimelineMax is zero or negative.
const DefaultTimelineMax = 100

// Views is one consistent snapshot of the materialized read models. Folds
// never mutate a snapshot in place; they return a new one built from the old.
type Views struct {
	Customers map[int64]model.CustomerStats
	Products  map[string]model.ProductStats
	Timeline  []model.TimelineEntry
	Stats     model.ProcessingStats
}

// NewViews returns an empty snapshot.
func NewViews() Views {
	return Views{
		Customers: make(map[int64]model.CustomerStats),
		Products:  make(map[string]model.ProductStats),
	}
}

// Clone deep-copies the snapshot so the result can be mutated freely.
func (v Views) Clone() Views {
	out := Views{
		Customers: make(map[int64]model.CustomerStats, len(v.Customers)),
		Products:  make(map[string]model.ProductStats, len(v.Products)),
		Timeline:  append([]model.TimelineEntry(nil), v.Timeline...),
		Stats:     v.Stats,
	}
	for k, cs := range v.Customers {
		out.Customers[k] = cs
	}
	for k, ps := range v.Products {
		out.Products[k] = ps
	}
	return out
}

// nowMillis returns current time in epoch milliseconds. Split for testability.
var nowMillis = func() int64 { return time.Now().UTC().UnixMilli() }

// ShouldUpdateCustomer is the idempotence guard for customer stats: false iff
// the stats already reflect this exact order.
func ShouldUpdateCustomer(cur *model.CustomerStats, o model.Order) bool {
	if cur == nil {
		return true
	}
	return cur.LastOrderID != o.OrderID
}

// UpdateCustomer folds one order into customer stats. cur == nil means first
// order from this customer.
func UpdateCustomer(cur *model.CustomerStats, o model.Order) model.CustomerStats {
	if cur == nil {
		return model.CustomerStats{
			CustomerID:          o.CustomerID,
			TotalOrders:         1,
			TotalSpent:          o.Total,
			LastOrderID:         o.OrderID,
			LastOrderTimestamp:  o.Timestamp,
			FirstOrderTimestamp: o.Timestamp,
		}
	}
	next := *cur
	next.TotalOrders++
	next.TotalSpent += o.Total
	next.LastOrderID = o.OrderID
	next.LastOrderTimestamp = o.Timestamp
	// FirstOrderTimestamp is immutable once set.
	return next
}

// UpdateProduct folds one order into product stats. The average is recomputed
// from the two running totals so it cannot drift.
func UpdateProduct(cur *model.ProductStats, o model.Order) model.ProductStats {
	var next model.ProductStats
	if cur != nil {
		next = *cur
	} else {
		next.ProductID = o.ProductID
	}
	next.TotalQuantity += o.Quantity
	next.TotalRevenue += o.Total
	next.OrderCount++
	next.AvgQuantity = avgQuantity(next.TotalQuantity, next.OrderCount)
	next.LastOrderTimestamp = o.Timestamp
	return next
}

func avgQuantity(totalQty, count int64) float64 {
	if count == 0 {
		return 0.0
	}
	return float64(totalQty) / float64(count)
}

// ShouldAddToTimeline is the idempotence guard for the timeline: false iff the
// order id is already present. Linear scan is fine at timeline-cap scale.
func ShouldAddToTimeline(tl []model.TimelineEntry, o model.Order) bool {
	for _, e := range tl {
		if e.OrderID == o.OrderID {
			return false
		}
	}
	return true
}

// AddToTimeline prepends a summary of the order and evicts the oldest entries
// past maxSize.
func AddToTimeline(tl []model.TimelineEntry, o model.Order, maxSize int) []model.TimelineEntry {
	if maxSize <= 0 {
		maxSize = DefaultTimelineMax
	}
	entry := model.TimelineEntry{
		OrderID:    o.OrderID,
		CustomerID: o.CustomerID,
		ProductID:  o.ProductID,
		Total:      o.Total,
		Timestamp:  o.Timestamp,
		Status:     o.Status,
	}
	out := make([]model.TimelineEntry, 0, len(tl)+1)
	out = append(out, entry)
	out = append(out, tl...)
	if len(out) > maxSize {
		out = out[:maxSize]
	}
	return out
}

// AggregateOrder folds one order into the snapshot: conditional customer and
// product updates, conditional timeline prepend, unconditional processed count.
// Re-applying the same order changes nothing but ProcessedCount.
func AggregateOrder(v Views, o model.Order, cfg Config) Views {
	next := v.Clone()

	var curCust *model.CustomerStats
	if cs, ok := next.Customers[o.CustomerID]; ok {
		curCust = &cs
	}
	if ShouldUpdateCustomer(curCust, o) {
		next.Customers[o.CustomerID] = UpdateCustomer(curCust, o)
	}

	// The timeline guard doubles as the product-stats dedup predicate: an
	// order id still present in the timeline has already been folded in.
	fresh := ShouldAddToTimeline(next.Timeline, o)
	if fresh {
		var curProd *model.ProductStats
		if ps, ok := next.Products[o.ProductID]; ok {
			curProd = &ps
		}
		next.Products[o.ProductID] = UpdateProduct(curProd, o)
		next.Timeline = AddToTimeline(next.Timeline, o, cfg.TimelineMax)
	}

	next.Stats.ProcessedCount++
	next.Stats.LastProcessedTimestamp = nowMillis()
	return next
}

// AggregateBatch folds a sequence of orders through AggregateOrder.
func AggregateBatch(v Views, orders []model.Order, cfg Config) Views {
	out := v
	for _, o := range orders {
		out = AggregateOrder(out, o, cfg)
	}
	return out
}
