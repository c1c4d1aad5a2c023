package worker

import (
	"bytes"
	"encoding/json"
)

// Event types emitted by a worker.
const (
	EventStdout  = "stdout"
	EventStderr  = "stderr"
	EventResults = "results"
)

// Request submits one block of code.
type Request struct {
	ID   string `json:"id,omitempty"`
	Code string `json:"code"`
}

// Event is a single message received from a worker.
type Event struct {
	Type       string        `json:"type"`
	ID         string        `json:"id,omitempty"`
	Stdout     string        `json:"stdout,omitempty"`
	Stderr     *ErrorPayload `json:"stderr,omitempty"`
	Error      bool          `json:"error,omitempty"`
	Result     *string       `json:"result,omitempty"`
	RenderHTML bool          `json:"renderHtml,omitempty"`
}

// Terminal reports whether the event ends the request it belongs to.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventResults:
		return true
	case EventStderr:
		return e.Error
	}
	return false
}

// Text returns the stream text of a stdout or stderr event.
func (e Event) Text() string {
	switch e.Type {
	case EventStdout:
		return e.Stdout
	case EventStderr:
		if e.Stderr != nil {
			return e.Stderr.Message
		}
	}
	return ""
}

// ErrorPayload is the body of a stderr event. Workers may send either an
// object with name, stack and message or a bare string, which is taken as
// the message.
type ErrorPayload struct {
	Name    string `json:"name,omitempty"`
	Stack   string `json:"stack,omitempty"`
	Message string `json:"message"`
}

func (p *ErrorPayload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		*p = ErrorPayload{}
		return json.Unmarshal(data, &p.Message)
	}

	type plain ErrorPayload
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = ErrorPayload(v)
	return nil
}

// StdoutEvent builds a stdout event.
func StdoutEvent(id, text string) Event {
	return Event{Type: EventStdout, ID: id, Stdout: text}
}

// StderrEvent builds a non-terminal stderr event.
func StderrEvent(id, text string) Event {
	return Event{Type: EventStderr, ID: id, Stderr: &ErrorPayload{Message: text}}
}

// ErrorEvent builds a terminal error event.
func ErrorEvent(id, name, message, stack string) Event {
	return Event{
		Type:   EventStderr,
		ID:     id,
		Stderr: &ErrorPayload{Name: name, Message: message, Stack: stack},
		Error:  true,
	}
}

// ResultEvent builds a terminal results event.
func ResultEvent(id, result string, html bool) Event {
	return Event{Type: EventResults, ID: id, Result: &result, RenderHTML: html}
}

// EmptyResultEvent builds a terminal results event for code that produced no value.
func EmptyResultEvent(id string) Event {
	return Event{Type: EventResults, ID: id}
}
