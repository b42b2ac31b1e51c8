package store

import (
	"context"

	"osp/internal/model"
)

// GetRegisteredOrder reads the registration for an order id, or ErrNotFound.
func (st *Session) GetRegisteredOrder(ctx context.Context, orderID string) (model.RegisteredOrder, error) {
	var ro model.RegisteredOrder
	err := st.s.Query(
		`SELECT order_id, customer_id, product_id, quantity, unit_price, total, order_ts,
			status, validation_passed, registered_at, updated_at, version
			FROM registered_orders WHERE order_id = ?`,
		orderID,
	).WithContext(ctx).Scan(
		&ro.OrderID, &ro.CustomerID, &ro.ProductID, &ro.Quantity, &ro.UnitPrice, &ro.Total,
		&ro.Timestamp, &ro.Status, &ro.ValidationPassed, &ro.RegisteredAt, &ro.UpdatedAt, &ro.Version,
	)
	if err != nil {
		return model.RegisteredOrder{}, mapErr("get registered order", err)
	}
	return ro, nil
}

// SaveRegisteredOrder upserts the registration row.
func (st *Session) SaveRegisteredOrder(ctx context.Context, ro model.RegisteredOrder) error {
	err := st.s.Query(
		`INSERT INTO registered_orders
			(order_id, customer_id, product_id, quantity, unit_price, total, order_ts,
			 status, validation_passed, registered_at, updated_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ro.OrderID, ro.CustomerID, ro.ProductID, ro.Quantity, ro.UnitPrice, ro.Total,
		ro.Timestamp, ro.Status, ro.ValidationPassed, ro.RegisteredAt, ro.UpdatedAt, ro.Version,
	).WithContext(ctx).Exec()
	if err != nil {
		return mapErr("save registered order", err)
	}
	return nil
}

// AppendOrderUpdate appends one history row. (order_id, version) keys make a
// replayed append overwrite the identical row rather than duplicate it.
func (st *Session) AppendOrderUpdate(ctx context.Context, u model.OrderUpdate) error {
	err := st.s.Query(
		`INSERT INTO order_updates (order_id, version, previous_status, new_status, updated_at, update_reason)
			VALUES (?, ?, ?, ?, ?, ?)`,
		u.OrderID, u.Version, u.PreviousStatus, u.NewStatus, u.UpdatedAt, u.UpdateReason,
	).WithContext(ctx).Exec()
	if err != nil {
		return mapErr("append order update", err)
	}
	return nil
}

// GetOrderUpdates reads the history rows for an order, newest version first.
func (st *Session) GetOrderUpdates(ctx context.Context, orderID string) ([]model.OrderUpdate, error) {
	iter := st.s.Query(
		`SELECT order_id, version, previous_status, new_status, updated_at, update_reason
			FROM order_updates WHERE order_id = ?`,
		orderID,
	).WithContext(ctx).Iter()

	var out []model.OrderUpdate
	var u model.OrderUpdate
	for iter.Scan(&u.OrderID, &u.Version, &u.PreviousStatus, &u.NewStatus, &u.UpdatedAt, &u.UpdateReason) {
		out = append(out, u)
	}
	if err := iter.Close(); err != nil {
		return nil, mapErr("get order updates", err)
	}
	return out, nil
}
