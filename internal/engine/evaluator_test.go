package engine

import (
	"testing"

	"github.com/fieldline/automation-engine/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	data := map[string]interface{}{
		"status":   "scheduled",
		"priority": float64(3),
		"total":    125.50,
		"tags":     []interface{}{"roofing", "urgent"},
		"customer": map[string]interface{}{
			"name": "Dana Fuentes",
			"tier": "gold",
		},
	}

	tests := []struct {
		name string
		cond models.TriggerCondition
		want bool
	}{
		{
			name: "eq string match",
			cond: models.TriggerCondition{Field: "status", Operator: "eq", Value: "scheduled"},
			want: true,
		},
		{
			name: "eq string mismatch",
			cond: models.TriggerCondition{Field: "status", Operator: "eq", Value: "completed"},
			want: false,
		},
		{
			name: "eq numeric across int and float",
			cond: models.TriggerCondition{Field: "priority", Operator: "eq", Value: 3},
			want: true,
		},
		{
			name: "neq",
			cond: models.TriggerCondition{Field: "status", Operator: "neq", Value: "completed"},
			want: true,
		},
		{
			name: "gt true",
			cond: models.TriggerCondition{Field: "total", Operator: "gt", Value: 100},
			want: true,
		},
		{
			name: "gt false on equal",
			cond: models.TriggerCondition{Field: "total", Operator: "gt", Value: 125.50},
			want: false,
		},
		{
			name: "gte on equal",
			cond: models.TriggerCondition{Field: "total", Operator: "gte", Value: 125.50},
			want: true,
		},
		{
			name: "lt",
			cond: models.TriggerCondition{Field: "priority", Operator: "lt", Value: 5},
			want: true,
		},
		{
			name: "lte",
			cond: models.TriggerCondition{Field: "priority", Operator: "lte", Value: 3},
			want: true,
		},
		{
			name: "in membership",
			cond: models.TriggerCondition{Field: "status", Operator: "in", Value: []interface{}{"scheduled", "dispatched"}},
			want: true,
		},
		{
			name: "in miss",
			cond: models.TriggerCondition{Field: "status", Operator: "in", Value: []interface{}{"completed"}},
			want: false,
		},
		{
			name: "contains on slice",
			cond: models.TriggerCondition{Field: "tags", Operator: "contains", Value: "urgent"},
			want: true,
		},
		{
			name: "contains on string",
			cond: models.TriggerCondition{Field: "status", Operator: "contains", Value: "sched"},
			want: true,
		},
		{
			name: "nested path",
			cond: models.TriggerCondition{Field: "customer.tier", Operator: "eq", Value: "gold"},
			want: true,
		},
		{
			name: "missing field is non-match",
			cond: models.TriggerCondition{Field: "assignee", Operator: "eq", Value: "anyone"},
			want: false,
		},
		{
			name: "missing nested path is non-match",
			cond: models.TriggerCondition{Field: "customer.phone", Operator: "eq", Value: "555"},
			want: false,
		},
		{
			name: "unknown operator is non-match",
			cond: models.TriggerCondition{Field: "status", Operator: "matches", Value: "scheduled"},
			want: false,
		},
		{
			name: "ordered comparison on non-numeric is non-match",
			cond: models.TriggerCondition{Field: "status", Operator: "gt", Value: 1},
			want: false,
		},
	}

	evaluator := NewConditionEvaluator()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evaluator.Evaluate(tt.cond, data))
		})
	}
}

func TestEvaluateAll(t *testing.T) {
	data := map[string]interface{}{
		"status": "scheduled",
		"total":  float64(200),
	}

	evaluator := NewConditionEvaluator()

	t.Run("empty list matches", func(t *testing.T) {
		assert.True(t, evaluator.EvaluateAll(nil, data))
	})

	t.Run("all hold", func(t *testing.T) {
		conds := []models.TriggerCondition{
			{Field: "status", Operator: "eq", Value: "scheduled"},
			{Field: "total", Operator: "gte", Value: 100},
		}
		assert.True(t, evaluator.EvaluateAll(conds, data))
	})

	t.Run("one failing condition fails the list", func(t *testing.T) {
		conds := []models.TriggerCondition{
			{Field: "status", Operator: "eq", Value: "scheduled"},
			{Field: "total", Operator: "lt", Value: 100},
		}
		assert.False(t, evaluator.EvaluateAll(conds, data))
	})
}
