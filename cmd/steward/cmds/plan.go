package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/steward/pkg/plan"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Validate or execute an execution plan file",
	}

	executeCmd, err := NewPlanExecuteCommand()
	cobra.CheckErr(err)
	executeCobraCmd, err := cli.BuildCobraCommand(executeCmd)
	cobra.CheckErr(err)

	validateCmd, err := NewPlanValidateCommand()
	cobra.CheckErr(err)
	validateCobraCmd, err := cli.BuildCobraCommand(validateCmd)
	cobra.CheckErr(err)

	cmd.AddCommand(executeCobraCmd, validateCobraCmd)
	return cmd
}

type PlanSettings struct {
	File   string `glazed.parameter:"file"`
	Output string `glazed.parameter:"output"`
}

func planFileFlag() *parameters.ParameterDefinition {
	return parameters.NewParameterDefinition(
		"file",
		parameters.ParameterTypeString,
		parameters.WithHelp("Plan file (YAML or JSON, - for stdin)"),
		parameters.WithShortFlag("f"),
		parameters.WithRequired(true),
	)
}

type PlanExecuteCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*PlanExecuteCommand)(nil)

func NewPlanExecuteCommand() (*PlanExecuteCommand, error) {
	return &PlanExecuteCommand{
		CommandDescription: cmds.NewCommandDescription(
			"execute",
			cmds.WithShort("Execute the steps of a plan, honouring depends_on"),
			cmds.WithFlags(
				planFileFlag(),
				parameters.NewParameterDefinition(
					"output",
					parameters.ParameterTypeChoice,
					parameters.WithHelp("Output format"),
					parameters.WithShortFlag("o"),
					parameters.WithChoices(outputFormats),
					parameters.WithDefault(outputAuto),
				),
			),
		),
	}, nil
}

func (c *PlanExecuteCommand) RunIntoWriter(ctx context.Context, parsedLayers *layers.ParsedLayers, w io.Writer) error {
	s := &PlanSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	p, err := readPlanFile(s.File)
	if err != nil {
		return err
	}
	app, err := appFromSettings(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()
	return withOutput(ctx, s.Output, w, func(ctx context.Context) (any, error) {
		return app.Agent.ExecutePlan(ctx, p)
	})
}

type PlanValidateCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*PlanValidateCommand)(nil)

func NewPlanValidateCommand() (*PlanValidateCommand, error) {
	return &PlanValidateCommand{
		CommandDescription: cmds.NewCommandDescription(
			"validate",
			cmds.WithShort("Check a plan against the registry and print its execution layers"),
			cmds.WithFlags(planFileFlag()),
		),
	}, nil
}

func (c *PlanValidateCommand) RunIntoWriter(ctx context.Context, parsedLayers *layers.ParsedLayers, w io.Writer) error {
	s := &PlanSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	p, err := readPlanFile(s.File)
	if err != nil {
		return err
	}
	app, err := appFromSettings(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()
	return validatePlan(w, p, app)
}

func validatePlan(w io.Writer, p plan.ExecutionPlan, app *App) error {
	if err := plan.Validate(p, app.Registry); err != nil {
		return err
	}
	stages, err := plan.Layers(p)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "plan %s: %d steps in %d layers\n", p.PlanID, len(p.Steps), len(stages))
	for i, l := range stages {
		fmt.Fprintf(w, "  %d: %s\n", i+1, strings.Join(l, ", "))
	}
	return nil
}

// readPlanFile decodes a plan; YAML is a superset of JSON so both are accepted.
// A missing plan id is generated.
func readPlanFile(path string) (plan.ExecutionPlan, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return plan.ExecutionPlan{}, errors.Wrapf(err, "read plan %s", path)
	}
	return decodePlan(b)
}

func decodePlan(b []byte) (plan.ExecutionPlan, error) {
	var p plan.ExecutionPlan
	if err := yaml.Unmarshal(b, &p); err != nil {
		return plan.ExecutionPlan{}, errors.Wrap(err, "decode plan")
	}
	if p.PlanID == "" {
		p.PlanID = uuid.NewString()
	}
	return p, nil
}
