package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeOrder_SnakeCase(t *testing.T) {
	payload := []byte(`{"order_id":"O1","customer_id":1,"product_id":"P1","quantity":5,"unit_price":10.0,"total":50.0,"timestamp":1694500000000,"status":"pending"}`)
	o, err := DecodeOrder(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if o.OrderID != "O1" || o.CustomerID != 1 || o.Quantity != 5 || o.Timestamp != 1694500000000 {
		t.Fatalf("unexpected order: %+v", o)
	}
}

func TestDecodeOrder_KebabCase(t *testing.T) {
	payload := []byte(`{"order-id":"O2","customer-id":7,"product-id":"P2","quantity":2,"unit-price":3.5,"total":7.0,"timestamp":1694500000001,"status":"pending"}`)
	o, err := DecodeOrder(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if o.OrderID != "O2" || o.CustomerID != 7 || o.UnitPrice != 3.5 {
		t.Fatalf("unexpected order: %+v", o)
	}
}

func TestDecodeOrder_FloatTimestamp(t *testing.T) {
	payload := []byte(`{"order_id":"O3","customer_id":1,"product_id":"P1","quantity":1,"unit_price":2.0,"total":2.0,"timestamp":1.6945e12,"status":"pending"}`)
	o, err := DecodeOrder(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if o.Timestamp != 1694500000000 {
		t.Fatalf("timestamp: want 1694500000000, got %d", o.Timestamp)
	}
}

func TestDecodeOrder_MissingField(t *testing.T) {
	payload := []byte(`{"order_id":"O4","customer_id":1}`)
	_, err := DecodeOrder(payload)
	if err == nil {
		t.Fatalf("expected error for missing fields")
	}
	if !strings.Contains(err.Error(), "product_id") {
		t.Fatalf("error should name the missing field: %v", err)
	}
}

func TestDecodeOrder_Malformed(t *testing.T) {
	if _, err := DecodeOrder([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}

func TestEnvelope_WireFieldNames(t *testing.T) {
	e := Envelope{
		Order: Order{OrderID: "O1", CustomerID: 1, ProductID: "P1", Quantity: 1, UnitPrice: 2, Total: 2, Timestamp: 5, Status: StatusPending},
		Result: Verdict{
			OrderID: "O1",
			Passed:  true,
			Rules:   []RuleResult{{Name: "minimum-quantity", Passed: true}},
		},
		Timestamp: 99,
	}
	b, err := json.Marshal(&e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"validation-result"`, `"order-id":"O1"`, `"order"`, `"timestamp":99`} {
		if !strings.Contains(s, want) {
			t.Fatalf("envelope JSON missing %s: %s", want, s)
		}
	}

	back, err := DecodeEnvelope(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Order.OrderID != "O1" || !back.Result.Passed {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestDecodeEnvelope_EmptyOrderID(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`{"order":{},"validation-result":{"passed":true},"timestamp":1}`)); err == nil {
		t.Fatalf("expected error for empty order id")
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []string{StatusPending, StatusAccepted, StatusDenied} {
		if !ValidStatus(s) {
			t.Fatalf("%s should be valid", s)
		}
	}
	if ValidStatus("shipped") {
		t.Fatalf("shipped should not be valid")
	}
}
