package model

// Order statuses accepted on the wire and in the registry.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusDenied   = "denied"
)

// ValidStatus reports whether s is one of the known order statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDenied:
		return true
	}
	return false
}

// Order is the input event consumed from the orders topic. Immutable once
// emitted; derived state is mutated instead.
type Order struct {
	OrderID    string  `json:"order_id"`
	CustomerID int64   `json:"customer_id"`
	ProductID  string  `json:"product_id"`
	Quantity   int64   `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	Total      float64 `json:"total"`
	Timestamp  int64   `json:"timestamp"` // epoch millis
	Status     string  `json:"status"`
}

// RuleResult is the outcome of a single validation rule.
type RuleResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// Verdict is the outcome of running an order through the full rule set.
type Verdict struct {
	OrderID string       `json:"order-id"`
	Passed  bool         `json:"passed"`
	Rules   []RuleResult `json:"rules"`
	Message string       `json:"message,omitempty"`
}

// Envelope is the record forwarded to the registry topic for orders whose
// verdict passed.
type Envelope struct {
	Order     Order   `json:"order"`
	Result    Verdict `json:"validation-result"`
	Timestamp int64   `json:"timestamp"`
}

// RegisteredOrder is the durable, versioned registration of an order,
// distinct from the raw event that produced it.
type RegisteredOrder struct {
	OrderID          string  `json:"order_id"`
	CustomerID       int64   `json:"customer_id"`
	ProductID        string  `json:"product_id"`
	Quantity         int64   `json:"quantity"`
	UnitPrice        float64 `json:"unit_price"`
	Total            float64 `json:"total"`
	Timestamp        int64   `json:"timestamp"`
	Status           string  `json:"status"`
	ValidationPassed bool    `json:"validation_passed"`
	RegisteredAt     int64   `json:"registered_at"`
	UpdatedAt        int64   `json:"updated_at"`
	Version          int64   `json:"version"`
}

// OrderUpdate is one history row appended whenever a registration changes.
type OrderUpdate struct {
	OrderID        string `json:"order_id"`
	Version        int64  `json:"version"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	UpdatedAt      int64  `json:"updated_at"`
	UpdateReason   string `json:"update_reason"`
}

// CustomerStats is the per-customer materialized view.
type CustomerStats struct {
	CustomerID          int64   `json:"customer_id"`
	TotalOrders         int64   `json:"total_orders"`
	TotalSpent          float64 `json:"total_spent"`
	LastOrderID         string  `json:"last_order_id"`
	LastOrderTimestamp  int64   `json:"last_order_timestamp"`
	FirstOrderTimestamp int64   `json:"first_order_timestamp"`
}

// ProductStats is the per-product materialized view. AvgQuantity is always
// recomputed from the running totals, never maintained incrementally.
type ProductStats struct {
	ProductID          string  `json:"product_id"`
	TotalQuantity      int64   `json:"total_quantity"`
	TotalRevenue       float64 `json:"total_revenue"`
	OrderCount         int64   `json:"order_count"`
	AvgQuantity        float64 `json:"avg_quantity"`
	LastOrderTimestamp int64   `json:"last_order_timestamp"`
}

// TimelineEntry is a lightweight order summary held in the recent-activity view.
type TimelineEntry struct {
	OrderID    string  `json:"order_id"`
	CustomerID int64   `json:"customer_id"`
	ProductID  string  `json:"product_id"`
	Total      float64 `json:"total"`
	Timestamp  int64   `json:"timestamp"`
	Status     string  `json:"status"`
}

// ProcessingStats is per-processor bookkeeping, not business data.
type ProcessingStats struct {
	ProcessedCount         int64 `json:"processed_count"`
	ErrorCount             int64 `json:"error_count"`
	LastProcessedTimestamp int64 `json:"last_processed_timestamp"`
}
