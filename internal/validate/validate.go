package validate

import (
	"fmt"
	"math"
	"strings"

	"osp/internal/model"
)

// Business limits checked by the rule set.
const (
	MinQuantity    = 1
	MaxQuantity    = 1000
	MinTotal       = 1.00
	MaxTotal       = 100000.00
	TotalTolerance = 0.01
)

type rule struct {
	name  string
	check func(model.Order) (bool, string)
}

// Rules run in this fixed order so verdicts are deterministic.
var rules = []rule{
	{"minimum-quantity", func(o model.Order) (bool, string) {
		if o.Quantity >= MinQuantity {
			return true, ""
		}
		return false, fmt.Sprintf("quantity %d is below minimum %d", o.Quantity, MinQuantity)
	}},
	{"maximum-quantity", func(o model.Order) (bool, string) {
		if o.Quantity <= MaxQuantity {
			return true, ""
		}
		return false, fmt.Sprintf("quantity %d exceeds maximum %d", o.Quantity, MaxQuantity)
	}},
	{"minimum-total", func(o model.Order) (bool, string) {
		if o.Total >= MinTotal {
			return true, ""
		}
		return false, fmt.Sprintf("total %.2f is below minimum %.2f", o.Total, MinTotal)
	}},
	{"maximum-total", func(o model.Order) (bool, string) {
		if o.Total <= MaxTotal {
			return true, ""
		}
		return false, fmt.Sprintf("total %.2f exceeds maximum %.2f", o.Total, MaxTotal)
	}},
	{"total-consistency", func(o model.Order) (bool, string) {
		expected := float64(o.Quantity) * o.UnitPrice
		if math.Abs(o.Total-expected) <= TotalTolerance {
			return true, ""
		}
		return false, fmt.Sprintf("total %.2f does not match quantity %d x unit price %.2f = %.2f", o.Total, o.Quantity, o.UnitPrice, expected)
	}},
	{"known-status", func(o model.Order) (bool, string) {
		if model.ValidStatus(o.Status) {
			return true, ""
		}
		return false, fmt.Sprintf("status %q is not a known status", o.Status)
	}},
	{"positive-customer", func(o model.Order) (bool, string) {
		if o.CustomerID > 0 {
			return true, ""
		}
		return false, fmt.Sprintf("customer id %d is not positive", o.CustomerID)
	}},
	{"non-empty-product", func(o model.Order) (bool, string) {
		if o.ProductID != "" {
			return true, ""
		}
		return false, "product id is empty"
	}},
}

// Validate scores an order against the full rule set. Pure: equal inputs yield
// equal verdicts.
func Validate(o model.Order) model.Verdict {
	v := model.Verdict{
		OrderID: o.OrderID,
		Passed:  true,
		Rules:   make([]model.RuleResult, 0, len(rules)),
	}
	for _, r := range rules {
		ok, msg := r.check(o)
		v.Rules = append(v.Rules, model.RuleResult{Name: r.name, Passed: ok, Message: msg})
		if !ok {
			v.Passed = false
		}
	}
	if !v.Passed {
		v.Message = fmt.Sprintf("order %s failed rules: %s", o.OrderID, strings.Join(FailedRules(v), ", "))
	}
	return v
}

// FailedRules extracts the names of failing rules for logging and metrics.
func FailedRules(v model.Verdict) []string {
	var names []string
	for _, r := range v.Rules {
		if !r.Passed {
			names = append(names, r.Name)
		}
	}
	return names
}
