package cmds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/steward/pkg/agent"
	"github.com/go-go-golems/steward/pkg/events"
	"github.com/go-go-golems/steward/pkg/stream"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	outputAuto     = "auto"
	outputText     = "text"
	outputMarkdown = "markdown" // tool events as text, the reply rendered by glamour
	outputNDJSON   = "ndjson"
	outputSSE      = "sse"
	outputJSON     = "json"
)

const (
	confirmAuto = "auto"
	confirmOn   = "on"
	confirmOff  = "off"
)

// markdownStyle is the glamour style used for replies rendered as markdown; auto
// falls back to plain text when stdout is not a terminal.
var markdownStyle = "auto"

type chatOptions struct {
	threadID string
	confirm  *bool
	yes      bool
	output   string
}

type ChatCommand struct {
	*cmds.CommandDescription
}

type ChatSettings struct {
	Thread  string   `glazed.parameter:"thread"`
	Confirm string   `glazed.parameter:"confirm"`
	Yes     bool     `glazed.parameter:"yes"`
	Output  string   `glazed.parameter:"output"`
	Message []string `glazed.parameter:"message"`
}

var _ cmds.WriterCommand = (*ChatCommand)(nil)

func NewChatCommand() (*cobra.Command, error) {
	c := &ChatCommand{
		CommandDescription: cmds.NewCommandDescription(
			"chat",
			cmds.WithShort("Run one turn and print its events"),
			cmds.WithLong("Run one turn and print its events. The message is read from stdin when omitted."),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"thread",
					parameters.ParameterTypeString,
					parameters.WithHelp("Thread id; history is replayed from the thread store"),
				),
				parameters.NewParameterDefinition(
					"confirm",
					parameters.ParameterTypeChoice,
					parameters.WithHelp("Hold back mutating tool calls for confirmation (auto follows agent.require-confirmation)"),
					parameters.WithChoices([]string{confirmAuto, confirmOn, confirmOff}),
					parameters.WithDefault(confirmAuto),
				),
				parameters.NewParameterDefinition(
					"yes",
					parameters.ParameterTypeBool,
					parameters.WithHelp("Execute a proposed plan or action right away"),
					parameters.WithShortFlag("y"),
					parameters.WithDefault(false),
				),
				parameters.NewParameterDefinition(
					"output",
					parameters.ParameterTypeChoice,
					parameters.WithHelp("Output format"),
					parameters.WithShortFlag("o"),
					parameters.WithChoices(outputFormats),
					parameters.WithDefault(outputAuto),
				),
			),
			cmds.WithArguments(
				parameters.NewParameterDefinition(
					"message",
					parameters.ParameterTypeStringList,
					parameters.WithHelp("Message to send"),
				),
			),
		),
	}
	return cli.BuildCobraCommand(c)
}

func (c *ChatCommand) RunIntoWriter(ctx context.Context, parsedLayers *layers.ParsedLayers, w io.Writer) error {
	s := &ChatSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	message := strings.Join(s.Message, " ")
	if strings.TrimSpace(message) == "" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return errors.Wrap(err, "read message")
		}
		message = string(b)
	}
	opts := chatOptions{threadID: s.Thread, yes: s.Yes, output: s.Output}
	switch s.Confirm {
	case confirmOn, confirmOff:
		v := s.Confirm == confirmOn
		opts.confirm = &v
	}

	st, err := loadSettings()
	if err != nil {
		return err
	}
	app, err := NewApp(ctx, st)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()
	if err := app.RequireProvider(); err != nil {
		return err
	}
	return runChat(ctx, app, message, opts, w)
}

func runChat(ctx context.Context, app *App, message string, opts chatOptions, out io.Writer) error {
	req := agent.Request{ThreadID: opts.threadID, Message: message, RequireConfirmation: opts.confirm}
	return withOutput(ctx, opts.output, out, func(ctx context.Context) (any, error) {
		resp, err := app.Agent.Run(ctx, req)
		if err != nil {
			return nil, err
		}
		if !opts.yes {
			return resp, nil
		}
		switch {
		case resp.ExecutionPlan != nil:
			return app.Agent.ExecutePlan(ctx, *resp.ExecutionPlan)
		case resp.PendingAction != nil:
			return app.Agent.ExecuteAction(ctx, *resp.PendingAction)
		}
		return resp, nil
	})
}

var outputFormats = []string{outputAuto, outputText, outputMarkdown, outputNDJSON, outputSSE, outputJSON}

// withOutput runs op with a sink rendering its events in the chosen format. In json
// mode nothing is streamed and the value returned by op is printed instead.
func withOutput(ctx context.Context, output string, out io.Writer, op func(ctx context.Context) (any, error)) error {
	if output == outputAuto {
		output = outputNDJSON
		if f, ok := out.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
			output = outputMarkdown
		}
	}

	switch output {
	case outputText:
		agg := &pendingCalls{agg: events.NewToolEventAggregator()}
		if err := withPrinter(events.WithEventSinks(ctx, agg), out, op); err != nil {
			return err
		}
		return agg.print(out)
	case outputMarkdown:
		agg := &pendingCalls{agg: events.NewToolEventAggregator()}
		reply := &replyBuffer{}
		if err := withPrinter(events.WithEventSinks(ctx, agg, reply), out, op, events.EventTypeContent); err != nil {
			return err
		}
		if err := renderMarkdown(out, reply.String(), markdownStyle); err != nil {
			return err
		}
		return agg.print(out)
	case outputNDJSON:
		_, err := op(events.WithEventSinks(ctx, stream.Sink(stream.NewNDJSONWriter(out))))
		return err
	case outputSSE:
		_, err := op(events.WithEventSinks(ctx, stream.Sink(stream.NewSSEStream(out))))
		return err
	case outputJSON:
		v, err := op(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return errors.Errorf("unknown output %q", output)
	}
}

// pendingCalls tracks tool calls that were requested but never ran, which is
// what a turn leaves behind when writes wait for confirmation.
type pendingCalls struct {
	mu  sync.Mutex
	agg *events.ToolEventAggregator
}

func (p *pendingCalls) PublishEvent(e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.agg.Handle(e)
	return nil
}

func (p *pendingCalls) print(out io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pending := p.agg.Pending()
	if len(pending) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(out, "\n%d tool call(s) not executed; rerun with --yes to confirm:\n", len(pending)); err != nil {
		return err
	}
	for _, e := range pending {
		if _, err := fmt.Fprintf(out, "  - %s\n", e.ToolName); err != nil {
			return err
		}
	}
	return nil
}

// replyBuffer joins the content fragments of a turn back into the reply.
type replyBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (r *replyBuffer) PublishEvent(e events.Event) error {
	if c, ok := e.(*events.EventContent); ok {
		r.mu.Lock()
		r.sb.WriteString(c.Text)
		r.mu.Unlock()
	}
	return nil
}

func (r *replyBuffer) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sb.String()
}

// renderMarkdown writes text rendered by glamour, or as-is if rendering fails.
func renderMarkdown(w io.Writer, text, style string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	rendered, err := glamour.Render(text, style)
	if err != nil {
		log.Warn().Err(err).Str("style", style).Msg("steward: could not render markdown")
		rendered = text
		if !strings.HasSuffix(rendered, "\n") {
			rendered += "\n"
		}
	}
	_, err = io.WriteString(w, rendered)
	return err
}

// withPrinter prints events through a router handler, the same path the server
// uses for its log handler. Events of the skipped types are not printed.
func withPrinter(ctx context.Context, out io.Writer, op func(ctx context.Context) (any, error), skip ...events.EventType) error {
	router, err := events.NewEventRouter(events.WithVerbose(verboseEvents()))
	if err != nil {
		return errors.Wrap(err, "create event router")
	}
	router.AddHandler("printer", events.TopicEvents, events.PrinterFunc(out, skip...))

	eg, groupCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(groupCtx)
	})
	eg.Go(func() error {
		defer func() { _ = router.Close() }()
		select {
		case <-router.Running():
		case <-groupCtx.Done():
			return groupCtx.Err()
		}
		_, err := op(events.WithEventSinks(groupCtx, router.Sink()))
		return err
	})
	return eg.Wait()
}
