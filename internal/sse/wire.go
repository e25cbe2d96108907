// Package sse implements the Server-Sent-Events wire contract used by the
// chat relay: the frame shape, the encoder used when streaming completions to
// browsers, and the tolerant incremental decoder used both by tests and by the
// relay itself when reading the upstream provider's event stream.
//
// The wire format is a sequence of frames of the form
//
//	data: {"candidates":[{"content":{"parts":[{"text":"<fragment>"}]}}]}\n\n
//
// There is no negotiation and no terminal sentinel: consumers detect
// completion by the end of the byte stream. The nested record shape is shared
// by the server encoder and every consumer; any field change must update both
// sides of the contract together.
package sse

// Chunk is the versioned wire record carried by one SSE data frame.
//
// The nesting mirrors the upstream provider's response shape so the relay can
// forward fragments without re-mapping and clients can reuse one parser for
// both direct and relayed streams.
type Chunk struct {
	Candidates []Candidate `json:"candidates"`
}

// Candidate is a single completion alternative. The relay only ever emits one.
type Candidate struct {
	Content Content `json:"content"`
}

// Content groups the parts of a candidate.
type Content struct {
	Parts []Part `json:"parts"`
}

// Part carries one text fragment.
type Part struct {
	Text string `json:"text"`
}

// NewTextChunk wraps a text fragment in the canonical single-candidate,
// single-part record.
func NewTextChunk(text string) Chunk {
	return Chunk{
		Candidates: []Candidate{{
			Content: Content{Parts: []Part{{Text: text}}},
		}},
	}
}

// Text returns the first candidate's first part text, or "" when the chunk
// carries no text (empty candidates are legal and simply contribute nothing).
func (c Chunk) Text() string {
	if len(c.Candidates) == 0 {
		return ""
	}
	parts := c.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return ""
	}
	return parts[0].Text
}
