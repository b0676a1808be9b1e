package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"gopkg.in/yaml.v3"
)

// PrintEvent renders an event for a terminal. Content fragments are written as-is;
// everything else gets a short marker and, for structured payloads, YAML.
func PrintEvent(w io.Writer, e Event) error {
	var err error
	switch ev := e.(type) {
	case *EventContent:
		_, err = fmt.Fprint(w, ev.Text)
		if err == nil && ev.Done && !strings.HasSuffix(ev.Text, "\n") {
			_, err = fmt.Fprintln(w)
		}

	case *EventToolCalls:
		for _, c := range ev.Calls {
			if _, err = fmt.Fprintf(w, "\n[tool] %s %s\n", c.ToolName, compactArgs(c.Args)); err != nil {
				return err
			}
		}

	case *EventToolResult:
		_, err = fmt.Fprintf(w, "[%s] %s: %s\n", ev.Kind, ev.ToolName, ev.Result)

	case *EventStateUpdate:
		if ev.State != nil && ev.State.FocusEntity != nil {
			f := ev.State.FocusEntity
			_, err = fmt.Fprintf(w, "[focus] %s %s (%s)\n", f.Type, f.Title, f.ID)
		}

	case *EventPlan:
		_, err = fmt.Fprintf(w, "\n--- Plan %s awaiting confirmation ---\n", ev.Plan.PlanID)
		if err == nil {
			err = writeYAML(w, ev.Plan)
		}

	case *EventPendingAction:
		_, err = fmt.Fprintf(w, "\n--- Action %s awaiting confirmation ---\n", ev.Action.ID)
		if err == nil {
			err = writeYAML(w, ev.Action)
		}

	case *EventExecutionComplete:
		status := "succeeded"
		if !ev.Success {
			status = "failed"
		}
		_, err = fmt.Fprintf(w, "\n--- Execution %s ---\n", status)
		if err == nil && ev.Summary != "" {
			_, err = fmt.Fprintln(w, ev.Summary)
		}
		if err == nil && ev.Error != "" {
			_, err = fmt.Fprintf(w, "error: %s\n", ev.Error)
		}

	case *EventDecisionError:
		_, err = fmt.Fprintf(w, "\n[warning] %s\n", ev.Message)

	case *EventError:
		_, err = fmt.Fprintf(w, "\n[error] %s\n", ev.Message)
	}
	return err
}

// PrinterFunc returns a watermill handler printing events with PrintEvent.
// Events of the skipped types are acknowledged without being printed.
func PrinterFunc(w io.Writer, skip ...EventType) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}
		for _, t := range skip {
			if e.Type() == t {
				return nil
			}
		}
		return PrintEvent(w, e)
	}
}

func writeYAML(w io.Writer, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func compactArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	b, err := yaml.Marshal(args)
	if err != nil {
		return fmt.Sprint(args)
	}
	return "{" + strings.Join(strings.Split(strings.TrimSpace(string(b)), "\n"), ", ") + "}"
}
