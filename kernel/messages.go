package kernel

import (
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is the messaging protocol version the kernel speaks.
const ProtocolVersion = "5.3"

// Stream names.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Header identifies a protocol message.
type Header struct {
	MsgID    string `json:"msg_id"`
	Session  string `json:"session"`
	Username string `json:"username"`
	Date     string `json:"date"`
	MsgType  string `json:"msg_type"`
	Version  string `json:"version"`
}

// NewHeader returns a header with a fresh message id.
func NewHeader(msgType, session string) Header {
	return Header{
		MsgID:    uuid.NewString(),
		Session:  session,
		Username: "kernel",
		Date:     time.Now().UTC().Format(time.RFC3339Nano),
		MsgType:  msgType,
		Version:  ProtocolVersion,
	}
}

// Stream is a stdout or stderr notification emitted while code runs.
type Stream struct {
	Event        string `json:"event"`
	Name         string `json:"name"`
	ParentHeader Header `json:"parent_header"`
	Text         string `json:"text"`
}

type LanguageInfo struct {
	Name              string          `json:"name"`
	Version           string          `json:"version"`
	MIMEType          string          `json:"mimetype"`
	FileExtension     string          `json:"file_extension"`
	PygmentsLexer     string          `json:"pygments_lexer,omitempty"`
	CodeMirrorMode    *CodeMirrorMode `json:"codemirror_mode,omitempty"`
	NBConvertExporter string          `json:"nbconvert_exporter,omitempty"`
}

type CodeMirrorMode struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

type HelpLink struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// InfoReply is the kernel_info_reply content.
type InfoReply struct {
	Status                string       `json:"status"`
	ProtocolVersion       string       `json:"protocol_version"`
	Implementation        string       `json:"implementation"`
	ImplementationVersion string       `json:"implementation_version"`
	LanguageInfo          LanguageInfo `json:"language_info"`
	Banner                string       `json:"banner"`
	HelpLinks             []HelpLink   `json:"help_links"`
}

// ExecuteRequest is the execute_request content. Header is the request's
// own header; stream notifications carry it as their parent.
type ExecuteRequest struct {
	Code   string `json:"code"`
	Silent bool   `json:"silent"`
	Header Header `json:"-"`
}

// ExecuteReply is the result of a successful execution. Data maps MIME
// types to representations.
type ExecuteReply struct {
	ExecutionCount int            `json:"execution_count"`
	Data           map[string]any `json:"data"`
	Metadata       map[string]any `json:"metadata"`
}

// Outcome is what a finished submission resolves to on success.
type Outcome struct {
	Data     map[string]any
	Metadata map[string]any
}

type CompleteRequest struct {
	Code      string `json:"code"`
	CursorPos int    `json:"cursor_pos"`
}

type CompleteReply struct {
	Matches     []string       `json:"matches"`
	CursorStart int            `json:"cursor_start"`
	CursorEnd   int            `json:"cursor_end"`
	Metadata    map[string]any `json:"metadata"`
	Status      string         `json:"status"`
}

type InspectRequest struct {
	Code        string `json:"code"`
	CursorPos   int    `json:"cursor_pos"`
	DetailLevel int    `json:"detail_level"`
}

type InspectReply struct {
	Status   string         `json:"status"`
	Found    bool           `json:"found"`
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata"`
}

type IsCompleteRequest struct {
	Code string `json:"code"`
}

type IsCompleteReply struct {
	Status string `json:"status"`
	Indent string `json:"indent,omitempty"`
}

type CommInfoRequest struct {
	TargetName string `json:"target_name,omitempty"`
}

type CommInfoReply struct {
	Status string                    `json:"status"`
	Comms  map[string]map[string]any `json:"comms"`
}

type InputRequest struct {
	Prompt   string `json:"prompt"`
	Password bool   `json:"password"`
}
