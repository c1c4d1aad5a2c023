package worker

import (
	"strings"
	"testing"
)

func TestFindNextFrame(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantIdx  int
		wantKind frameKind
	}{
		{"no frame", "hello world", -1, frameNone},
		{"event frame", "prefix\x00WK:{}\x00suffix", 6, frameEvent},
		{"call frame", "prefix\x00WK_CALL:{}\x00suffix", 6, frameCall},
		{"event before call", "\x00WK:{}\x00\x00WK_CALL:{}\x00", 0, frameEvent},
		{"call before event", "\x00WK_CALL:{}\x00\x00WK:{}\x00", 0, frameCall},
		{"empty content", "", -1, frameNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, kind := findNextFrame(tt.content)
			if idx != tt.wantIdx {
				t.Errorf("idx = %d, want %d", idx, tt.wantIdx)
			}
			if kind != tt.wantKind {
				t.Errorf("kind = %d, want %d", kind, tt.wantKind)
			}
		})
	}
}

func TestExtractFrame(t *testing.T) {
	payload, rest, ok := extractFrame("\x00WK:{\"type\":\"results\"}\x00tail", eventPrefix)
	if !ok {
		t.Fatal("expected complete frame")
	}
	if payload != `{"type":"results"}` {
		t.Errorf("payload = %q", payload)
	}
	if rest != "tail" {
		t.Errorf("rest = %q", rest)
	}

	if _, _, ok := extractFrame("\x00WK:{partial", eventPrefix); ok {
		t.Error("expected incomplete frame")
	}
}

func TestPartialPrefixAt(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"hello", 5},
		{"hello\x00", 5},
		{"hello\x00W", 5},
		{"hello\x00WK_CA", 5},
		{"hello\x00X", 7},
		{"", 0},
	}

	for _, tt := range tests {
		if got := partialPrefixAt(tt.content); got != tt.want {
			t.Errorf("partialPrefixAt(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}

type recorder struct {
	text    []string
	events  []Event
	calls   []callRequest
	invalid []string
}

func newRecordingReader() (*frameReader, *recorder) {
	rec := &recorder{}
	return &frameReader{
		onText:  func(s string) { rec.text = append(rec.text, s) },
		onEvent: func(ev Event) { rec.events = append(rec.events, ev) },
		onCall:  func(req callRequest) { rec.calls = append(rec.calls, req) },
		onInvalid: func(kind frameKind, payload string, err error) {
			rec.invalid = append(rec.invalid, payload)
		},
	}, rec
}

func TestFrameReaderMixedContent(t *testing.T) {
	r, rec := newRecordingReader()

	input := "warning: slow\n" +
		"\x00WK:{\"type\":\"results\",\"id\":\"a\",\"result\":\"2\"}\x00" +
		"\x00WK_CALL:{\"fn\":\"kv_get\",\"args\":{\"key\":\"k\"}}\x00" +
		"trailing"
	if _, err := r.Write([]byte(input)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if got := strings.Join(rec.text, ""); got != "warning: slow\ntrailing" {
		t.Errorf("text = %q", got)
	}
	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Type != EventResults || ev.ID != "a" || ev.Result == nil || *ev.Result != "2" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if len(rec.calls) != 1 || rec.calls[0].Fn != "kv_get" || rec.calls[0].Args["key"] != "k" {
		t.Errorf("unexpected calls: %+v", rec.calls)
	}
}

func TestFrameReaderSplitWrites(t *testing.T) {
	r, rec := newRecordingReader()

	frame := "\x00WK:{\"type\":\"stdout\",\"stdout\":\"hi\"}\x00"
	// Feed one byte at a time so every boundary is exercised.
	for i := 0; i < len(frame); i++ {
		r.Write([]byte{frame[i]})
	}

	if len(rec.text) != 0 {
		t.Errorf("frame bytes leaked as text: %q", rec.text)
	}
	if len(rec.events) != 1 || rec.events[0].Stdout != "hi" {
		t.Errorf("unexpected events: %+v", rec.events)
	}
}

func TestFrameReaderInvalidJSON(t *testing.T) {
	r, rec := newRecordingReader()

	r.Write([]byte("\x00WK:{not json}\x00\x00WK:{\"type\":\"results\"}\x00"))

	if len(rec.invalid) != 1 || rec.invalid[0] != "{not json}" {
		t.Errorf("unexpected invalid frames: %q", rec.invalid)
	}
	if len(rec.events) != 1 {
		t.Errorf("expected reader to recover after invalid frame, got %d events", len(rec.events))
	}
}

func TestFrameReaderStderrObject(t *testing.T) {
	r, rec := newRecordingReader()

	r.Write([]byte("\x00WK:{\"type\":\"stderr\",\"error\":true,\"stderr\":{\"name\":\"ValueError\",\"message\":\"bad\",\"stack\":\"tb\"}}\x00"))

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	ev := rec.events[0]
	if !ev.Terminal() {
		t.Error("expected error event to be terminal")
	}
	if ev.Stderr == nil || ev.Stderr.Name != "ValueError" || ev.Stderr.Stack != "tb" {
		t.Errorf("unexpected stderr payload: %+v", ev.Stderr)
	}
}

func TestFrameReaderUnterminatedFrame(t *testing.T) {
	r, rec := newRecordingReader()

	r.Write([]byte("\x00WK:stray" +
		"\x00WK:{\"type\":\"results\",\"id\":\"a\",\"result\":\"2\"}\x00" +
		"\x00WK:{\"type\":\"results\",\"id\":\"b\"}\x00"))

	if len(rec.invalid) != 1 || rec.invalid[0] != "stray" {
		t.Errorf("unexpected invalid frames: %q", rec.invalid)
	}
	if len(rec.events) != 2 || rec.events[0].ID != "a" || rec.events[1].ID != "b" {
		t.Errorf("result frames lost after unterminated frame: %+v", rec.events)
	}
}
