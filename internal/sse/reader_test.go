package sse

import (
	"io"
	"strings"
	"testing"
)

// chunkedReader yields the configured byte slices one Read at a time,
// simulating arbitrary network chunk boundaries.
type chunkedReader struct {
	chunks []string
	pos    int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.chunks) {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.pos])
	r.pos++
	return n, nil
}

func frame(text string) string {
	return `data: {"candidates":[{"content":{"parts":[{"text":"` + text + `"}]}}]}` + "\n\n"
}

func TestReader_SingleFrame(t *testing.T) {
	d := NewReader(strings.NewReader(frame("hello")))

	c, err := d.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got := c.Text(); got != "hello" {
		t.Fatalf("Text = %q, want %q", got, "hello")
	}
	if _, err := d.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF at stream end, got %v", err)
	}
}

func TestReader_ArbitraryChunkBoundaries(t *testing.T) {
	// One frame split mid-prefix, mid-JSON, and mid-delimiter; a second frame
	// glued to the first chunk of a third.
	wire := frame("Hel") + frame("lo, ") + frame("world")
	cases := [][]string{
		{wire},
		{wire[:3], wire[3:40], wire[40:41], wire[41:]},
		splitEveryN(wire, 1),
		splitEveryN(wire, 7),
	}

	for i, chunks := range cases {
		d := NewReader(&chunkedReader{chunks: chunks})
		var sb strings.Builder
		for {
			c, err := d.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("case %d: Next: %v", i, err)
			}
			sb.WriteString(c.Text())
		}
		if got := sb.String(); got != "Hello, world" {
			t.Fatalf("case %d: accumulated %q, want %q", i, got, "Hello, world")
		}
	}
}

func splitEveryN(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	return append(out, s)
}

func TestReader_SkipsMalformedFrames(t *testing.T) {
	wire := frame("a") +
		"data: {not json}\n\n" + // corrupt JSON
		": keep-alive comment\n\n" + // SSE comment, no data prefix
		"event: done\n\n" + // non-data field
		frame("b")

	got, err := Accumulate(strings.NewReader(wire))
	if err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	if got != "ab" {
		t.Fatalf("accumulated %q, want %q", got, "ab")
	}
}

func TestReader_PartialTrailingFrameDiscarded(t *testing.T) {
	// The stream dies mid-frame; whatever decoded before stands as the output.
	wire := frame("partial ok") + `data: {"candidates":[{"content":{"p`

	got, err := Accumulate(strings.NewReader(wire))
	if err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	if got != "partial ok" {
		t.Fatalf("accumulated %q, want %q", got, "partial ok")
	}
}

func TestReader_EmptyCandidatesContributeNothing(t *testing.T) {
	wire := `data: {"candidates":[]}` + "\n\n" + frame("x")

	d := NewReader(strings.NewReader(wire))
	text, err := d.NextText()
	if err != nil {
		t.Fatalf("NextText: %v", err)
	}
	if text != "x" {
		t.Fatalf("NextText = %q, want %q", text, "x")
	}
}

func TestReader_EmptyStream(t *testing.T) {
	got, err := Accumulate(strings.NewReader(""))
	if err != nil || got != "" {
		t.Fatalf("empty stream: got %q err %v", got, err)
	}
}

func TestChunk_TextFirstPartOnly(t *testing.T) {
	c := Chunk{Candidates: []Candidate{{
		Content: Content{Parts: []Part{{Text: "first"}, {Text: "second"}}},
	}}}
	if got := c.Text(); got != "first" {
		t.Fatalf("Text = %q, want %q", got, "first")
	}
	if got := (Chunk{}).Text(); got != "" {
		t.Fatalf("empty chunk Text = %q, want empty", got)
	}
}
