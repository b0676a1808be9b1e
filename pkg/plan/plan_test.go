package plan

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *tools.Registry {
	reg := tools.NewRegistry()
	add := func(name string, readonly, enabled bool, op tools.PendingOperation) {
		def, err := tools.NewTool(name, name, func(_ context.Context, _ map[string]any) tools.Result { return tools.OK(name) })
		require.NoError(t, err)
		md := tools.ToolMetadata{Category: tools.CategoryTasks, Readonly: readonly, Enabled: enabled, PendingOperation: op}
		require.True(t, reg.Register(def, md, tools.DefaultRegisterOptions()))
	}
	add("create_task", false, true, tools.PendingOperationCreate)
	add("update_task", false, true, tools.PendingOperationUpdate)
	add("query_tasks", true, true, tools.PendingOperationNone)
	add("legacy_write", false, false, tools.PendingOperationNone)
	return reg
}

func step(id, action string, deps ...string) ExecutionStep {
	return ExecutionStep{ID: id, Action: action, Params: map[string]any{"title": id}, DependsOn: deps}
}

func TestValidateAcceptsDAG(t *testing.T) {
	p := ExecutionPlan{Steps: []ExecutionStep{step("a", "create_task"), step("b", "create_task"), step("c", "update_task", "a", "b")}}
	require.NoError(t, Validate(p, testRegistry(t)))

	layers, err := Layers(p)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, layers)
}

func TestValidateRejects(t *testing.T) {
	reg := testRegistry(t)
	cases := map[string]ExecutionPlan{
		"empty":        {},
		"empty id":     {Steps: []ExecutionStep{step("", "create_task")}},
		"duplicate id": {Steps: []ExecutionStep{step("a", "create_task"), step("a", "create_task")}},
		"unknown dep":  {Steps: []ExecutionStep{step("a", "create_task", "zzz")}},
		"self dep":     {Steps: []ExecutionStep{step("a", "create_task", "a")}},
		"cycle":        {Steps: []ExecutionStep{step("a", "create_task", "b"), step("b", "create_task", "a")}},
		"unknown tool": {Steps: []ExecutionStep{step("a", "launch_rocket")}},
		"disabled":     {Steps: []ExecutionStep{step("a", "legacy_write")}},
	}
	for name, p := range cases {
		err := Validate(p, reg)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrInvalidPlan), name)
	}
}

func TestValidateAction(t *testing.T) {
	reg := testRegistry(t)
	ok := PendingTaskAction{ID: "x", Action: "create_task", Operation: OperationCreate}
	require.NoError(t, ValidateAction(ok, reg))

	wrongOp := ok
	wrongOp.Operation = OperationUpdate
	assert.Error(t, ValidateAction(wrongOp, reg))

	readonly := PendingTaskAction{ID: "x", Action: "query_tasks", Operation: OperationCreate}
	assert.Error(t, ValidateAction(readonly, reg))

	noID := ok
	noID.ID = ""
	assert.Error(t, ValidateAction(noID, reg))
}

type expenseArgs struct {
	Amount   float64 `json:"amount" jsonschema:"required"`
	Currency string  `json:"currency,omitempty"`
}

func TestValidateChecksParamsAgainstSchema(t *testing.T) {
	reg := testRegistry(t)
	def, err := tools.NewTool("create_expense", "record", func(_ context.Context, _ expenseArgs) tools.Result { return tools.OK("ok") })
	require.NoError(t, err)
	require.True(t, reg.Register(def, tools.ToolMetadata{Category: tools.CategoryExpenses, Enabled: true, PendingOperation: tools.PendingOperationCreate}, tools.DefaultRegisterOptions()))

	good := ExecutionPlan{Steps: []ExecutionStep{{ID: "a", Action: "create_expense", Params: map[string]any{"amount": 4.5, "note": "ignored"}}}}
	require.NoError(t, Validate(good, reg))

	missing := ExecutionPlan{Steps: []ExecutionStep{{ID: "a", Action: "create_expense", Params: map[string]any{"currency": "EUR"}}}}
	err = Validate(missing, reg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPlan))
	assert.Contains(t, err.Error(), "amount")

	wrongType := PendingTaskAction{ID: "x", Action: "create_expense", Operation: OperationCreate, Params: map[string]any{"amount": "a lot"}}
	err = ValidateAction(wrongType, reg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPlan))
}

func TestFromToolCallsAndBack(t *testing.T) {
	calls := []tools.ToolCall{
		{ID: "call_1", Name: "create_task", Arguments: json.RawMessage(`{"title":"Buy milk"}`)},
		{Name: "create_task", Arguments: json.RawMessage(`{"title":"Call mom","due_date":"tomorrow"}`)},
	}
	p := FromToolCalls("thread-1", "Create two tasks", calls, Describe)
	assert.NotEmpty(t, p.PlanID)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, "call_1", p.Steps[0].ID)
	assert.Equal(t, "step-2", p.Steps[1].ID)
	assert.Equal(t, "create_task(due_date=tomorrow, title=Call mom)", p.Steps[1].Description)

	back := p.Steps[0].ToolCall()
	assert.Equal(t, "create_task", back.Name)
	assert.JSONEq(t, `{"title":"Buy milk"}`, string(back.Arguments))

	cp := p.Clone()
	cp.Steps[0].Params["title"] = "changed"
	assert.Equal(t, "Buy milk", p.Steps[0].Params["title"])
}
