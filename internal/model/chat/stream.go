package chat

// StreamChunk is one wire-only piece of a streamed bot reply. All chunks of a
// reply share a StreamID; exactly one chunk per reply carries IsComplete, and
// only that terminal chunk carries the assembled FullText.
type StreamChunk struct {
	Text       string `json:"text"`
	IsComplete bool   `json:"isComplete"`
	StreamID   string `json:"streamId"`
	FullText   string `json:"fullText,omitempty"`
}
