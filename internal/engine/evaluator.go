package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fieldline/automation-engine/internal/models"
)

// ConditionEvaluator evaluates trigger conditions against entity snapshots.
// Evaluation never errors outward: a malformed condition or a missing field
// is a non-match, so one bad workflow cannot wedge the detector.
type ConditionEvaluator struct{}

// NewConditionEvaluator creates a new condition evaluator
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{}
}

// EvaluateAll reports whether every condition in the conjunctive list holds
// against the given snapshot. An empty list matches.
func (e *ConditionEvaluator) EvaluateAll(conditions []models.TriggerCondition, data map[string]interface{}) bool {
	for _, cond := range conditions {
		if !e.Evaluate(cond, data) {
			return false
		}
	}
	return true
}

// Evaluate checks a single condition against the snapshot.
func (e *ConditionEvaluator) Evaluate(cond models.TriggerCondition, data map[string]interface{}) bool {
	actual, ok := lookupPath(data, cond.Field)
	if !ok {
		return false
	}

	switch cond.Operator {
	case "eq":
		return compareEqual(actual, cond.Value)
	case "neq":
		return !compareEqual(actual, cond.Value)
	case "gt", "gte", "lt", "lte":
		return compareOrdered(actual, cond.Value, cond.Operator)
	case "in":
		return containsValue(cond.Value, actual)
	case "contains":
		return containsValue(actual, cond.Value)
	default:
		return false
	}
}

// lookupPath walks a dot-separated path through nested maps.
func lookupPath(data map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = data

	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// compareEqual compares values loosely: numbers compare numerically across
// int/float/json.Number shapes, everything else through string form.
func compareEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareOrdered(a, b interface{}, op string) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return false
	}

	switch op {
	case "gt":
		return af > bf
	case "gte":
		return af >= bf
	case "lt":
		return af < bf
	case "lte":
		return af <= bf
	}
	return false
}

// containsValue reports whether haystack contains needle. Slices check
// membership, strings check substring.
func containsValue(haystack, needle interface{}) bool {
	switch h := haystack.(type) {
	case []interface{}:
		for _, item := range h {
			if compareEqual(item, needle) {
				return true
			}
		}
		return false
	case string:
		return strings.Contains(h, fmt.Sprintf("%v", needle))
	default:
		return false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
