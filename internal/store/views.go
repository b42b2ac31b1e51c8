package store

import (
	"context"

	"go.uber.org/zap"

	"osp/internal/aggregate"
	"osp/internal/model"
)

// TimelineBucket is the single logical bucket of the recent-activity view.
// Kept as a column so a sharded timeline stays schema compatible.
const TimelineBucket = "recent"

// SaveCustomerStats upserts one per-customer row.
func (st *Session) SaveCustomerStats(ctx context.Context, cs model.CustomerStats) error {
	err := st.s.Query(
		`INSERT INTO orders_by_customer
			(customer_id, total_orders, total_spent, last_order_id, last_order_ts, first_order_ts)
			VALUES (?, ?, ?, ?, ?, ?)`,
		cs.CustomerID, cs.TotalOrders, cs.TotalSpent, cs.LastOrderID, cs.LastOrderTimestamp, cs.FirstOrderTimestamp,
	).WithContext(ctx).Exec()
	if err != nil {
		return mapErr("save customer stats", err)
	}
	return nil
}

// GetCustomerStats reads one per-customer row.
func (st *Session) GetCustomerStats(ctx context.Context, customerID int64) (model.CustomerStats, error) {
	var cs model.CustomerStats
	err := st.s.Query(
		`SELECT customer_id, total_orders, total_spent, last_order_id, last_order_ts, first_order_ts
			FROM orders_by_customer WHERE customer_id = ?`,
		customerID,
	).WithContext(ctx).Scan(&cs.CustomerID, &cs.TotalOrders, &cs.TotalSpent, &cs.LastOrderID, &cs.LastOrderTimestamp, &cs.FirstOrderTimestamp)
	if err != nil {
		return model.CustomerStats{}, mapErr("get customer stats", err)
	}
	return cs, nil
}

// SaveProductStats upserts one per-product row.
func (st *Session) SaveProductStats(ctx context.Context, ps model.ProductStats) error {
	err := st.s.Query(
		`INSERT INTO orders_by_product
			(product_id, total_quantity, total_revenue, order_count, avg_quantity, last_order_ts)
			VALUES (?, ?, ?, ?, ?, ?)`,
		ps.ProductID, ps.TotalQuantity, ps.TotalRevenue, ps.OrderCount, ps.AvgQuantity, ps.LastOrderTimestamp,
	).WithContext(ctx).Exec()
	if err != nil {
		return mapErr("save product stats", err)
	}
	return nil
}

// GetProductStats reads one per-product row.
func (st *Session) GetProductStats(ctx context.Context, productID string) (model.ProductStats, error) {
	var ps model.ProductStats
	err := st.s.Query(
		`SELECT product_id, total_quantity, total_revenue, order_count, avg_quantity, last_order_ts
			FROM orders_by_product WHERE product_id = ?`,
		productID,
	).WithContext(ctx).Scan(&ps.ProductID, &ps.TotalQuantity, &ps.TotalRevenue, &ps.OrderCount, &ps.AvgQuantity, &ps.LastOrderTimestamp)
	if err != nil {
		return model.ProductStats{}, mapErr("get product stats", err)
	}
	return ps, nil
}

// SaveTimeline writes the timeline entries. Rows are keyed by (bucket, ts,
// order_id) so re-writing the same converged snapshot is idempotent.
func (st *Session) SaveTimeline(ctx context.Context, entries []model.TimelineEntry) error {
	for _, e := range entries {
		err := st.s.Query(
			`INSERT INTO orders_timeline (bucket_id, ts, order_id, customer_id, product_id, total, status)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
			TimelineBucket, e.Timestamp, e.OrderID, e.CustomerID, e.ProductID, e.Total, e.Status,
		).WithContext(ctx).Exec()
		if err != nil {
			return mapErr("save timeline entry", err)
		}
	}
	return nil
}

// GetTimeline reads the most recent entries, newest first (the clustering
// order of the table).
func (st *Session) GetTimeline(ctx context.Context, limit int) ([]model.TimelineEntry, error) {
	if limit <= 0 {
		limit = aggregate.DefaultTimelineMax
	}
	iter := st.s.Query(
		`SELECT ts, order_id, customer_id, product_id, total, status
			FROM orders_timeline WHERE bucket_id = ? LIMIT ?`,
		TimelineBucket, limit,
	).WithContext(ctx).Iter()

	var out []model.TimelineEntry
	var e model.TimelineEntry
	for iter.Scan(&e.Timestamp, &e.OrderID, &e.CustomerID, &e.ProductID, &e.Total, &e.Status) {
		out = append(out, e)
	}
	if err := iter.Close(); err != nil {
		return nil, mapErr("get timeline", err)
	}
	return out, nil
}

// SaveProcessingStats upserts the bookkeeping row for a processor instance.
func (st *Session) SaveProcessingStats(ctx context.Context, table, processorID string, s model.ProcessingStats) error {
	err := st.s.Query(
		`INSERT INTO `+table+` (processor_id, processed_count, error_count, last_processed_ts)
			VALUES (?, ?, ?, ?)`,
		processorID, s.ProcessedCount, s.ErrorCount, s.LastProcessedTimestamp,
	).WithContext(ctx).Exec()
	if err != nil {
		return mapErr("save processing stats", err)
	}
	return nil
}

// SaveViews flushes the current snapshot: one write per entity, no multi-row
// transaction. A partial failure leaves a mix, which the next flush of the
// same converged state repairs.
func (st *Session) SaveViews(ctx context.Context, v aggregate.Views, processorID string) error {
	for _, cs := range v.Customers {
		if err := st.SaveCustomerStats(ctx, cs); err != nil {
			return err
		}
	}
	for _, ps := range v.Products {
		if err := st.SaveProductStats(ctx, ps); err != nil {
			return err
		}
	}
	if err := st.SaveTimeline(ctx, v.Timeline); err != nil {
		return err
	}
	if err := st.SaveProcessingStats(ctx, "processing_stats", processorID, v.Stats); err != nil {
		return err
	}
	st.log.Debug("views persisted",
		zap.Int("customers", len(v.Customers)),
		zap.Int("products", len(v.Products)),
		zap.Int("timeline", len(v.Timeline)))
	return nil
}
