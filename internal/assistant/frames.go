package assistant

// Frame kinds carried on the turn-send event stream.
const (
	FrameChunk    = "chunk"
	FrameMetadata = "metadata"
	FrameError    = "error"
	FrameDone     = "done"
)

// MetadataFields are the partial metadata a stream may reveal mid-flight.
// Pointer fields distinguish "absent" from zero so late frames never erase
// values merged earlier.
type MetadataFields struct {
	Model            *string `json:"model,omitempty"`
	Mode             *string `json:"mode,omitempty"`
	PromptTokens     *int    `json:"promptTokens,omitempty"`
	CompletionTokens *int    `json:"completionTokens,omitempty"`
	Cached           *bool   `json:"cached,omitempty"`
}

// DoneFields close out a stream: the server-side message id for the
// assembled response plus any final metadata.
type DoneFields struct {
	MessageID string          `json:"messageId,omitempty"`
	Response  string          `json:"response,omitempty"`
	Metadata  *MetadataFields `json:"metadata,omitempty"`
}

// Frame is one decoded record from the event stream. Exactly one of the
// kind-specific payloads is populated, selected by Type.
type Frame struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`     // chunk
	Metadata *MetadataFields `json:"metadata,omitempty"` // metadata
	Code     string          `json:"code,omitempty"`     // error
	Message  string          `json:"message,omitempty"`  // error
	Done     *DoneFields     `json:"done,omitempty"`     // done
}

// Terminal reports whether this frame ends the stream.
func (f Frame) Terminal() bool {
	return f.Type == FrameDone || f.Type == FrameError
}
