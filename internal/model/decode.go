package model

import (
	"encoding/json"
	"fmt"
)

// DecodeOrder parses an order record payload. Producers disagree on key style
// (snake_case vs kebab-case) and on timestamp encoding (int vs long vs float),
// so decoding goes through a raw map instead of struct tags.
func DecodeOrder(payload []byte) (Order, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Order{}, fmt.Errorf("decode order: %w", err)
	}

	var o Order
	var err error
	if o.OrderID, err = rawString(raw, "order_id", "order-id"); err != nil {
		return Order{}, err
	}
	if o.CustomerID, err = rawInt(raw, "customer_id", "customer-id"); err != nil {
		return Order{}, err
	}
	if o.ProductID, err = rawString(raw, "product_id", "product-id"); err != nil {
		return Order{}, err
	}
	if o.Quantity, err = rawInt(raw, "quantity"); err != nil {
		return Order{}, err
	}
	if o.UnitPrice, err = rawFloat(raw, "unit_price", "unit-price"); err != nil {
		return Order{}, err
	}
	if o.Total, err = rawFloat(raw, "total"); err != nil {
		return Order{}, err
	}
	if o.Timestamp, err = rawInt(raw, "timestamp"); err != nil {
		return Order{}, err
	}
	if o.Status, err = rawString(raw, "status"); err != nil {
		return Order{}, err
	}
	return o, nil
}

func rawLookup(raw map[string]json.RawMessage, keys ...string) (json.RawMessage, string, error) {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			return v, k, nil
		}
	}
	return nil, "", fmt.Errorf("decode order: missing field %q", keys[0])
}

func rawString(raw map[string]json.RawMessage, keys ...string) (string, error) {
	v, k, err := rawLookup(raw, keys...)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("decode order: field %q: %w", k, err)
	}
	return s, nil
}

func rawInt(raw map[string]json.RawMessage, keys ...string) (int64, error) {
	v, k, err := rawLookup(raw, keys...)
	if err != nil {
		return 0, err
	}
	// Tolerate both 1694500000 and 1.6945e9 style encodings.
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, fmt.Errorf("decode order: field %q: %w", k, err)
	}
	return int64(f), nil
}

func rawFloat(raw map[string]json.RawMessage, keys ...string) (float64, error) {
	v, k, err := rawLookup(raw, keys...)
	if err != nil {
		return 0, err
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, fmt.Errorf("decode order: field %q: %w", k, err)
	}
	return f, nil
}

// DecodeEnvelope parses a registry-topic record.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if e.Order.OrderID == "" {
		return Envelope{}, fmt.Errorf("decode envelope: empty order id")
	}
	return e, nil
}
