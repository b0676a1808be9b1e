package tools

import (
	"fmt"
	"strings"
)

// ResultKind tags the outcome encoded in a tool's text result.
type ResultKind string

const (
	ResultOK        ResultKind = "ok"
	ResultWarning   ResultKind = "warning"
	ResultError     ResultKind = "error"
	ResultAmbiguous ResultKind = "ambiguous"
)

// ErrorPrefix starts the text of every error-kind result.
const ErrorPrefix = "Error: "

// Result is what a tool hands back to the orchestrator. Text is what the LLM sees;
// Kind and Data let callers branch on the outcome without parsing the text.
type Result struct {
	Kind ResultKind `json:"kind" yaml:"kind"`
	Text string     `json:"text" yaml:"text"`
	Data any        `json:"data,omitempty" yaml:"data,omitempty"`
}

func OK(text string) Result {
	return Result{Kind: ResultOK, Text: text}
}

func OKf(format string, args ...any) Result {
	return OK(fmt.Sprintf(format, args...))
}

// Warning is a successful result that carries a non-fatal warning in its text.
func Warning(text string) Result {
	return Result{Kind: ResultWarning, Text: text}
}

func Errorf(format string, args ...any) Result {
	msg := fmt.Sprintf(format, args...)
	if !strings.HasPrefix(msg, ErrorPrefix) {
		msg = ErrorPrefix + msg
	}
	return Result{Kind: ResultError, Text: msg}
}

// Ambiguous lists candidates and defers the choice to the caller.
func Ambiguous(text string, candidates any) Result {
	return Result{Kind: ResultAmbiguous, Text: text, Data: candidates}
}

func (r Result) WithData(data any) Result {
	r.Data = data
	return r
}

func (r Result) IsError() bool {
	return r.Kind == ResultError
}

// Succeeded reports whether the tool applied its operation (possibly with a warning).
func (r Result) Succeeded() bool {
	return r.Kind == ResultOK || r.Kind == ResultWarning
}

func (r Result) String() string {
	return r.Text
}
