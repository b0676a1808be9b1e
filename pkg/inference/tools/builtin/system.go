package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/go-go-golems/steward/pkg/resolve"
)

type currentTimeInput struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA time zone such as Europe/Berlin; defaults to the server zone"`
}

type toolDocumentationInput struct {
	ToolName string `json:"tool_name,omitempty" jsonschema:"description=Tool to document; omit to list every enabled tool"`
}

func systemSpecs(deps Deps) []tools.ToolSpec {
	specs := []tools.ToolSpec{{
		Definition: tools.MustNewTool("get_current_time",
			"Return the current date, weekday and time. Call this before reasoning about relative dates.",
			func(_ context.Context, in currentTimeInput) tools.Result {
				now := deps.now()
				if tz := strings.TrimSpace(in.Timezone); tz != "" {
					loc, err := time.LoadLocation(tz)
					if err != nil {
						return tools.Errorf("unknown time zone %q", tz)
					}
					now = now.In(loc)
				}
				return tools.OKf("%s, %s %s (%s)",
					now.Weekday(), resolve.FormatDate(now), now.Format("15:04"), now.Location())
			}),
		Metadata: tools.ToolMetadata{
			Category: tools.CategorySystem,
			Readonly: true,
			Enabled:  true,
			Parameters: []tools.ParameterMetadata{{
				Name:               "timezone",
				Importance:         tools.ImportanceLow,
				HasDefault:         true,
				DefaultDescription: "server time zone",
				OnMissing:          tools.OnMissingUseDefault,
			}},
		},
	}}

	if deps.Registry != nil {
		reg := deps.Registry
		specs = append(specs, tools.ToolSpec{
			Definition: tools.MustNewTool("get_tool_documentation",
				"Describe a tool's parameters: which are critical, which have defaults, and what to ask the user when one is missing.",
				func(_ context.Context, in toolDocumentationInput) tools.Result {
					name := strings.TrimSpace(in.ToolName)
					if name == "" {
						var b strings.Builder
						b.WriteString("Available tools:")
						for _, t := range reg.Query(tools.NewQueryFilter()) {
							fmt.Fprintf(&b, "\n- %s [%s]: %s", t.Name, t.Metadata.Category, t.Metadata.Description)
						}
						return tools.OK(b.String())
					}
					doc, ok := reg.Describe(name)
					if !ok {
						return tools.Errorf("unknown tool %q", name)
					}
					return tools.OK(doc)
				}),
			Metadata: tools.ToolMetadata{
				Category: tools.CategorySystem,
				Readonly: true,
				Enabled:  true,
				Parameters: []tools.ParameterMetadata{{
					Name:               "tool_name",
					Importance:         tools.ImportanceMedium,
					HasDefault:         true,
					DefaultDescription: "list all tools",
					OnMissing:          tools.OnMissingUseDefault,
				}},
			},
		})
	}
	return specs
}
