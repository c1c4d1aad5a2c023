package worker

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
)

// Frame markers written by the guest on stderr.
// Format: \x00WK:{json}\x00 and \x00WK_CALL:{json}\x00
const (
	eventPrefix = "\x00WK:"
	callPrefix  = "\x00WK_CALL:"
	frameSuffix = "\x00"
)

type frameKind int

const (
	frameNone frameKind = iota
	frameEvent
	frameCall
)

type callRequest struct {
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

type callResponse struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// frameReader splits the guest's stderr into plain text, event frames and
// host call frames. Incomplete frames are held until the rest arrives.
type frameReader struct {
	onText    func(string)
	onEvent   func(Event)
	onCall    func(callRequest)
	onInvalid func(kind frameKind, payload string, err error)

	buf bytes.Buffer
	mu  sync.Mutex
}

func (f *frameReader) Write(data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf.Write(data)

	for {
		content := f.buf.String()
		idx, kind := findNextFrame(content)
		if kind == frameNone {
			keep := partialPrefixAt(content)
			f.text(content[:keep])
			f.buf.Reset()
			f.buf.WriteString(content[keep:])
			break
		}

		f.text(content[:idx])

		prefix := eventPrefix
		if kind == frameCall {
			prefix = callPrefix
		}
		payload, rest, ok := extractFrame(content[idx:], prefix)
		if !ok {
			f.buf.Reset()
			f.buf.WriteString(content[idx:])
			break
		}
		f.buf.Reset()
		f.buf.WriteString(rest)

		f.dispatch(kind, payload)
	}

	return len(data), nil
}

func (f *frameReader) text(s string) {
	if s != "" && f.onText != nil {
		f.onText(s)
	}
}

func (f *frameReader) dispatch(kind frameKind, payload string) {
	switch kind {
	case frameEvent:
		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			f.invalid(kind, payload, err)
			return
		}
		if f.onEvent != nil {
			f.onEvent(ev)
		}
	case frameCall:
		var req callRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			f.invalid(kind, payload, err)
			return
		}
		if f.onCall != nil {
			f.onCall(req)
		}
	}
}

func (f *frameReader) invalid(kind frameKind, payload string, err error) {
	if f.onInvalid != nil {
		f.onInvalid(kind, payload, err)
	}
}

// findNextFrame returns the index and kind of the earliest frame in content.
func findNextFrame(content string) (int, frameKind) {
	eventIdx := strings.Index(content, eventPrefix)
	callIdx := strings.Index(content, callPrefix)

	switch {
	case eventIdx == -1 && callIdx == -1:
		return -1, frameNone
	case callIdx == -1 || (eventIdx != -1 && eventIdx < callIdx):
		return eventIdx, frameEvent
	default:
		return callIdx, frameCall
	}
}

// extractFrame splits a frame starting at content[0] into its payload and
// the remaining content. ok is false while the terminator is missing.
func extractFrame(content, prefix string) (payload, rest string, ok bool) {
	body := content[len(prefix):]
	end := strings.Index(body, frameSuffix)
	if end == -1 {
		return "", "", false
	}
	// A NUL that opens another frame means this one was never closed. The
	// broken payload is returned alone and the new frame stays in rest.
	if tail := body[end:]; strings.HasPrefix(tail, eventPrefix) || strings.HasPrefix(tail, callPrefix) {
		return body[:end], tail, true
	}
	return body[:end], body[end+len(frameSuffix):], true
}

// partialPrefixAt returns the offset of a trailing NUL that may start a
// frame whose prefix has not fully arrived, or len(content).
func partialPrefixAt(content string) int {
	start := max(len(content)-len(callPrefix), 0)
	for i := start; i < len(content); i++ {
		if content[i] != 0 {
			continue
		}
		tail := content[i:]
		if strings.HasPrefix(eventPrefix, tail) || strings.HasPrefix(callPrefix, tail) {
			return i
		}
	}
	return len(content)
}
