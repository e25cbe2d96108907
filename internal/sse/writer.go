package sse

import (
	"encoding/json"
	"io"
	"net/http"
)

// Writer encodes chunks as SSE data frames and flushes each frame
// immediately so fragments reach the client as they are produced.
//
// Writer is not safe for concurrent use; the relay holds exactly one per
// request.
type Writer struct {
	w io.Writer
	f http.Flusher
}

// NewWriter wraps w. When w also implements http.Flusher (as Gin's
// ResponseWriter does), every frame is flushed after being written.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.f = f
	}
	return sw
}

// WriteChunk writes one `data: <json>\n\n` frame and flushes it.
func (sw *Writer) WriteChunk(c Chunk) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if _, err := sw.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := sw.w.Write(payload); err != nil {
		return err
	}
	if _, err := sw.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	if sw.f != nil {
		sw.f.Flush()
	}
	return nil
}

// WriteText encodes text as a canonical single-part chunk and writes it.
func (sw *Writer) WriteText(text string) error {
	return sw.WriteChunk(NewTextChunk(text))
}
