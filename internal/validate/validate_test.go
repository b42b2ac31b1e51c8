package validate

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"osp/internal/model"
)

func goodOrder() model.Order {
	return model.Order{
		OrderID:    "O1",
		CustomerID: 1,
		ProductID:  "P1",
		Quantity:   5,
		UnitPrice:  10.0,
		Total:      50.0,
		Timestamp:  1000,
		Status:     model.StatusPending,
	}
}

func TestValidate_AllRulesPass(t *testing.T) {
	v := Validate(goodOrder())
	require.True(t, v.Passed)
	require.Len(t, v.Rules, 8)
	require.Empty(t, v.Message)
	for _, r := range v.Rules {
		require.True(t, r.Passed, "rule %s", r.Name)
		require.Empty(t, r.Message)
	}
}

func TestValidate_Deterministic(t *testing.T) {
	o := goodOrder()
	o.Quantity = 2000
	o.Total = float64(o.Quantity) * o.UnitPrice

	first := Validate(o)
	second := Validate(o)
	require.True(t, reflect.DeepEqual(first, second))
}

func TestValidate_MaximumQuantity(t *testing.T) {
	o := goodOrder()
	o.Quantity = 2000
	o.Total = float64(o.Quantity) * o.UnitPrice

	v := Validate(o)
	require.False(t, v.Passed)
	require.Equal(t, []string{"maximum-quantity"}, FailedRules(v))
	require.Contains(t, v.Message, "maximum-quantity")
}

func TestValidate_EachRule(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.Order)
		rule   string
	}{
		{"zero quantity", func(o *model.Order) { o.Quantity = 0; o.Total = 0 }, "minimum-quantity"},
		{"huge quantity", func(o *model.Order) { o.Quantity = 1001; o.Total = float64(o.Quantity) * o.UnitPrice }, "maximum-quantity"},
		{"tiny total", func(o *model.Order) { o.Quantity = 1; o.UnitPrice = 0.5; o.Total = 0.5 }, "minimum-total"},
		{"huge total", func(o *model.Order) { o.Quantity = 1000; o.UnitPrice = 200; o.Total = 200000 }, "maximum-total"},
		{"inconsistent total", func(o *model.Order) { o.Total = 51.0 }, "total-consistency"},
		{"unknown status", func(o *model.Order) { o.Status = "shipped" }, "known-status"},
		{"bad customer", func(o *model.Order) { o.CustomerID = 0 }, "positive-customer"},
		{"empty product", func(o *model.Order) { o.ProductID = "" }, "non-empty-product"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := goodOrder()
			tc.mutate(&o)
			v := Validate(o)
			require.False(t, v.Passed)
			require.Contains(t, FailedRules(v), tc.rule)
			for _, r := range v.Rules {
				if r.Name == tc.rule {
					require.NotEmpty(t, r.Message, "failure message should name the offending value")
				}
			}
		})
	}
}

func TestValidate_ToleranceBoundary(t *testing.T) {
	o := goodOrder()
	o.Total = 50.01 // exactly at tolerance
	require.True(t, Validate(o).Passed)

	o.Total = 50.02
	require.False(t, Validate(o).Passed)
}

func TestFailedRules_MultipleFailures(t *testing.T) {
	o := goodOrder()
	o.CustomerID = -1
	o.ProductID = ""
	v := Validate(o)
	require.Equal(t, []string{"positive-customer", "non-empty-product"}, FailedRules(v))
}
