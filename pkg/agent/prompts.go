package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/steward/pkg/conversation"
	"github.com/go-go-golems/steward/pkg/inference/engine"
)

const defaultSystemPrompt = `You are Steward, a personal assistant managing the user's schedule, tasks, expenses and notes.
Use the tools to read and change records; never invent record ids.
When a tool lists several candidates, ask the user which one they mean instead of guessing.
Mention any warning a tool reports. Keep answers short.`

const planningPrompt = `Break the user's request into a short plan before acting.
Answer only with JSON of the form {"goal": "...", "steps": ["...", "..."]}.
Use at most five steps; each step is one sentence.`

const reflectionPrompt = `You review an assistant's answer to a user request.
Check that the answer addresses the request and agrees with the tool results.
Answer only with JSON of the form
{"quality": "good" | "needs_improvement", "issues": ["..."], "suggestions": ["..."], "learnings": ["..."]}.
Learnings are durable facts about the user's preferences worth remembering; leave the list empty when there are none.`

func (o *Orchestrator) systemPrompt(cfg Config, conv *conversation.State, now time.Time) string {
	var b strings.Builder
	if cfg.SystemPrompt != "" {
		b.WriteString(cfg.SystemPrompt)
	} else {
		b.WriteString(defaultSystemPrompt)
	}
	fmt.Fprintf(&b, "\n\nCurrent time: %s.", now.Format("Monday, 2006-01-02 15:04 MST"))
	if conv != nil && conv.FocusEntity != nil {
		fe := conv.FocusEntity
		fmt.Fprintf(&b, "\nThe conversation is about %s %q (id: %s", strings.ReplaceAll(fe.Type, "_", " "), fe.Title, fe.ID)
		if fe.Date != "" {
			fmt.Fprintf(&b, ", date %s", fe.Date)
		}
		b.WriteString("). Pronouns like \"it\" refer to this record unless the user says otherwise.")
	}
	if o.decisionBlocks {
		b.WriteString("\n\n")
		b.WriteString(engine.DecisionInstructions)
	}
	return b.String()
}

func reflectionInput(st *AgentState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n", st.request)
	if st.Plan != nil && st.Plan.Goal != "" {
		fmt.Fprintf(&b, "Goal: %s\n", st.Plan.Goal)
	}
	if len(st.ToolCalls) > 0 {
		b.WriteString("Tool results:\n")
		for _, tc := range st.ToolCalls {
			fmt.Fprintf(&b, "- %s: %s\n", tc.Name, tc.Result)
		}
	}
	fmt.Fprintf(&b, "Answer: %s", st.reply)
	return b.String()
}

func guidance(r ReflectionResult) string {
	var b strings.Builder
	b.WriteString("Your previous answer needs improvement.")
	if len(r.Issues) > 0 {
		b.WriteString("\nIssues:\n- " + strings.Join(r.Issues, "\n- "))
	}
	if len(r.Suggestions) > 0 {
		b.WriteString("\nSuggestions:\n- " + strings.Join(r.Suggestions, "\n- "))
	}
	b.WriteString("\nAnswer the user's request again.")
	return b.String()
}
