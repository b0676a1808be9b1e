package cmds

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewToolsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tool registry",
	}

	listCmd, err := NewToolsListCommand()
	cobra.CheckErr(err)
	listCobraCmd, err := cli.BuildCobraCommand(listCmd)
	cobra.CheckErr(err)

	describeCmd, err := NewToolsDescribeCommand()
	cobra.CheckErr(err)
	describeCobraCmd, err := cli.BuildCobraCommand(describeCmd)
	cobra.CheckErr(err)

	cmd.AddCommand(listCobraCmd, describeCobraCmd)
	return cmd
}

type ToolsListCommand struct {
	*cmds.CommandDescription
}

type ToolsListSettings struct {
	Filter     string   `glazed.parameter:"filter"`
	Categories []string `glazed.parameter:"category"`
	All        bool     `glazed.parameter:"all"`
	Readonly   bool     `glazed.parameter:"readonly"`
}

var _ cmds.GlazeCommand = (*ToolsListCommand)(nil)

func NewToolsListCommand() (*ToolsListCommand, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create Glazed parameter layer")
	}
	return &ToolsListCommand{
		CommandDescription: cmds.NewCommandDescription(
			"list",
			cmds.WithShort("List registered tools"),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"filter",
					parameters.ParameterTypeString,
					parameters.WithHelp("Glob (schedule_*) or substring matched against tool names"),
				),
				parameters.NewParameterDefinition(
					"category",
					parameters.ParameterTypeStringList,
					parameters.WithHelp("Only these categories"),
				),
				parameters.NewParameterDefinition(
					"all",
					parameters.ParameterTypeBool,
					parameters.WithHelp("Include disabled tools"),
					parameters.WithDefault(false),
				),
				parameters.NewParameterDefinition(
					"readonly",
					parameters.ParameterTypeBool,
					parameters.WithHelp("Only tools that do not change records"),
					parameters.WithDefault(false),
				),
			),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *ToolsListCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &ToolsListSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	app, err := appFromSettings(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	for _, r := range toolRows(app.Registry, *s) {
		if err := gp.AddRow(ctx, r.glazedRow()); err != nil {
			return err
		}
	}
	return nil
}

type ToolsDescribeCommand struct {
	*cmds.CommandDescription
}

type ToolsDescribeSettings struct {
	Name string `glazed.parameter:"name"`
}

var _ cmds.WriterCommand = (*ToolsDescribeCommand)(nil)

func NewToolsDescribeCommand() (*ToolsDescribeCommand, error) {
	return &ToolsDescribeCommand{
		CommandDescription: cmds.NewCommandDescription(
			"describe",
			cmds.WithShort("Show the documentation of a tool"),
			cmds.WithArguments(
				parameters.NewParameterDefinition(
					"name",
					parameters.ParameterTypeString,
					parameters.WithHelp("Tool name"),
					parameters.WithRequired(true),
				),
			),
		),
	}, nil
}

func (c *ToolsDescribeCommand) RunIntoWriter(ctx context.Context, parsedLayers *layers.ParsedLayers, w io.Writer) error {
	s := &ToolsDescribeSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	app, err := appFromSettings(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()
	return describeTool(w, app.Registry, s.Name)
}

func describeTool(w io.Writer, reg *tools.Registry, name string) error {
	doc, ok := reg.Describe(name)
	if !ok {
		return errors.Errorf("unknown tool %q", name)
	}
	_, err := fmt.Fprint(w, doc)
	return err
}

func appFromSettings(ctx context.Context) (*App, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	return NewApp(ctx, s)
}

type toolRow struct {
	Name        string
	Category    tools.Category
	Readonly    bool
	Enabled     bool
	Description string
	Parameters  []string
}

func (r toolRow) access() string {
	access := "write"
	if r.Readonly {
		access = "read"
	}
	if !r.Enabled {
		access += " (disabled)"
	}
	return access
}

func (r toolRow) glazedRow() types.Row {
	return types.NewRow(
		types.MRP("name", r.Name),
		types.MRP("category", string(r.Category)),
		types.MRP("access", r.access()),
		types.MRP("parameters", strings.Join(r.Parameters, ", ")),
		types.MRP("description", r.Description),
	)
}

func toolRows(reg *tools.Registry, s ToolsListSettings) []toolRow {
	filter := tools.NewQueryFilter()
	filter.NamePattern = s.Filter
	filter.EnabledOnly = !s.All
	filter.ReadonlyOnly = s.Readonly
	for _, c := range s.Categories {
		filter.Categories = append(filter.Categories, tools.Category(c))
	}

	var rows []toolRow
	for _, t := range reg.Query(filter) {
		row := toolRow{
			Name:        t.Name,
			Category:    t.Metadata.Category,
			Readonly:    t.Metadata.Readonly,
			Enabled:     t.Metadata.Enabled,
			Description: t.Metadata.Description,
		}
		if row.Description == "" {
			row.Description = t.Definition.Description
		}
		for _, p := range t.Metadata.Parameters {
			row.Parameters = append(row.Parameters, p.Name)
		}
		rows = append(rows, row)
	}
	return rows
}
