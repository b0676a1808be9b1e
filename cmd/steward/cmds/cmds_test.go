package cmds

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/go-go-golems/steward/pkg/agent"
	"github.com/go-go-golems/steward/pkg/events"
	"github.com/go-go-golems/steward/pkg/settings"
	"github.com/go-go-golems/steward/pkg/store"
	"github.com/go-go-golems/steward/pkg/stream"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offlineApp(t *testing.T) *App {
	t.Helper()
	s := settings.Default()
	s.LLM.Offline = true
	app, err := NewApp(context.Background(), s)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestNewAppWithoutAPIKeyHasNoProvider(t *testing.T) {
	app, err := NewApp(context.Background(), settings.Default())
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	assert.Nil(t, app.Provider)
	err = app.RequireProvider()
	require.Error(t, err)
	assert.True(t, errors.Is(err, agent.ErrProviderUnavailable))
	assert.Greater(t, app.Registry.Count(), 0)
	_, ok := app.Registry.Lookup("analyze_image")
	assert.False(t, ok, "vision needs an API key")
}

func TestNewAppWithSQLiteStore(t *testing.T) {
	s := settings.Default()
	s.LLM.Offline = true
	s.Store = settings.StoreSettings{Driver: "sqlite3", DSN: ":memory:"}
	app, err := NewApp(context.Background(), s)
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	_, err = app.Store.Tasks().Create(context.Background(), store.Task{Title: "Pay rent"})
	require.NoError(t, err)
}

func TestNewAppRejectsUnknownDriver(t *testing.T) {
	s := settings.Default()
	s.Store = settings.StoreSettings{Driver: "postgres", DSN: "x"}
	_, err := NewApp(context.Background(), s)
	assert.Error(t, err)
}

func TestOfflineChatJSON(t *testing.T) {
	app := offlineApp(t)
	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), app, "hello", chatOptions{output: outputJSON}, &out))

	var resp agent.AgentResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Contains(t, resp.Reply, "Offline mode")
	assert.NotEmpty(t, resp.ThreadID)
}

func TestOfflineChatPlansLongerRequests(t *testing.T) {
	app := offlineApp(t)
	var out bytes.Buffer
	msg := "add a task to pay rent tomorrow and then remind me to call mom"
	require.NoError(t, runChat(context.Background(), app, msg, chatOptions{output: outputJSON}, &out))

	var resp agent.AgentResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotNil(t, resp.Plan)
	assert.Equal(t, msg, resp.Plan.Goal)
	assert.Len(t, resp.Plan.Steps, 1)
}

func TestOfflineChatNDJSON(t *testing.T) {
	app := offlineApp(t)
	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), app, "hello", chatOptions{threadID: "t1", output: outputAuto}, &out))

	r := stream.NewNDJSONReader(&out)
	var types []events.EventType
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, "t1", e.Metadata().ThreadID)
		types = append(types, e.Type())
	}
	require.NotEmpty(t, types)
	assert.Equal(t, events.EventTypeStateUpdate, types[len(types)-1])
}

func TestOfflineChatText(t *testing.T) {
	app := offlineApp(t)
	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), app, "hello", chatOptions{output: outputText}, &out))
	assert.Contains(t, out.String(), "Offline mode")
}

func TestOfflineChatMarkdown(t *testing.T) {
	prev := markdownStyle
	markdownStyle = "notty"
	t.Cleanup(func() { markdownStyle = prev })

	app := offlineApp(t)
	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), app, "hello", chatOptions{output: outputMarkdown}, &out))
	assert.Equal(t, 1, strings.Count(out.String(), "Offline mode"), "the reply is rendered once, not streamed as well")
}

func TestRenderMarkdown(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, renderMarkdown(&out, "# Today\n\n- pay rent\n", "notty"))
	assert.Contains(t, out.String(), "Today")
	assert.Contains(t, out.String(), "pay rent")

	out.Reset()
	require.NoError(t, renderMarkdown(&out, "  \n", "notty"))
	assert.Empty(t, out.String())
}

func TestUnknownOutput(t *testing.T) {
	app := offlineApp(t)
	err := runChat(context.Background(), app, "hello", chatOptions{output: "xml"}, io.Discard)
	assert.Error(t, err)
}

func TestToolRows(t *testing.T) {
	app := offlineApp(t)

	rows := toolRows(app.Registry, ToolsListSettings{Filter: "*_task"})
	require.NotEmpty(t, rows)
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Name)
	}
	assert.Contains(t, names, "create_task")
	assert.NotContains(t, names, "calculate")

	for _, r := range toolRows(app.Registry, ToolsListSettings{Readonly: true}) {
		assert.True(t, r.Readonly, r.Name)
	}

	for _, r := range toolRows(app.Registry, ToolsListSettings{Categories: []string{"notes"}}) {
		assert.Equal(t, "notes", string(r.Category), r.Name)
	}
}

func TestToolRowAsGlazedRow(t *testing.T) {
	row := toolRow{Name: "delete_note", Category: "notes", Enabled: false, Parameters: []string{"id", "search_title"}}.glazedRow()
	access, ok := row.Get("access")
	require.True(t, ok)
	assert.Equal(t, "write (disabled)", access)
	params, ok := row.Get("parameters")
	require.True(t, ok)
	assert.Equal(t, "id, search_title", params)
}

func TestDescribeTool(t *testing.T) {
	app := offlineApp(t)
	var out bytes.Buffer
	require.NoError(t, describeTool(&out, app.Registry, "update_note"))
	assert.Contains(t, out.String(), "update_note")
	assert.Contains(t, out.String(), "Update Note")
	assert.Error(t, describeTool(io.Discard, app.Registry, "no_such_tool"))
}

const planYAML = `
summary: two tasks
steps:
  - id: rent
    action: create_task
    params:
      title: Pay rent
  - id: mom
    action: create_task
    params:
      title: Call mom
    depends_on: [rent]
`

func TestPlanFileValidateAndExecute(t *testing.T) {
	app := offlineApp(t)
	p, err := decodePlan([]byte(planYAML))
	require.NoError(t, err)
	assert.NotEmpty(t, p.PlanID)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, "Pay rent", p.Steps[0].Params["title"])

	var out bytes.Buffer
	require.NoError(t, validatePlan(&out, p, app))
	assert.Contains(t, out.String(), "2 steps in 2 layers")

	out.Reset()
	require.NoError(t, withOutput(context.Background(), outputJSON, &out, func(ctx context.Context) (any, error) {
		return app.Agent.ExecutePlan(ctx, p)
	}))
	var res agent.PlanResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.True(t, res.Success)

	tasks, err := app.Store.Tasks().Query(context.Background(), store.TaskQuery{})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestValidatePlanRejectsCycles(t *testing.T) {
	app := offlineApp(t)
	p, err := decodePlan([]byte(`{"steps":[{"id":"a","action":"create_task","depends_on":["b"]},{"id":"b","action":"create_task","depends_on":["a"]}]}`))
	require.NoError(t, err)
	err = validatePlan(io.Discard, p, app)
	require.Error(t, err)
	assert.True(t, errors.Is(err, agent.ErrInvalidPlan))
}
