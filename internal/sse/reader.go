package sse

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
)

// dataPrefix marks a processable frame; anything else (comments, event:
// lines, empty keep-alives) is ignored.
const dataPrefix = "data: "

// Reader incrementally decodes SSE data frames from a byte stream. It is the
// canonical consumer for the wire contract in this package: it tolerates
// arbitrary chunk boundaries, skips frames that are not `data: `-prefixed or
// fail to parse as JSON, and reports completion solely via io.EOF when the
// underlying stream ends.
//
// A connection dropped mid-frame is indistinguishable from a clean end: the
// buffered partial frame is discarded and whatever was decoded before stands
// as the final (possibly partial) output. That is intentional; the stream is
// best-effort text accumulation, not a strict protocol.
type Reader struct {
	r   io.Reader
	buf bytes.Buffer
	tmp [4096]byte
	eof bool
}

// NewReader returns a Reader decoding frames from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next returns the next well-formed chunk. Malformed frames are skipped, not
// surfaced. It returns io.EOF once the stream ends, and any other read error
// verbatim.
func (d *Reader) Next() (Chunk, error) {
	for {
		// Drain complete frames already buffered.
		for {
			frame, ok := d.nextFrame()
			if !ok {
				break
			}
			if !strings.HasPrefix(frame, dataPrefix) {
				continue
			}
			var c Chunk
			if err := json.Unmarshal([]byte(frame[len(dataPrefix):]), &c); err != nil {
				// Corrupt frame: skip and keep consuming.
				continue
			}
			return c, nil
		}

		if d.eof {
			return Chunk{}, io.EOF
		}

		n, err := d.r.Read(d.tmp[:])
		if n > 0 {
			d.buf.Write(d.tmp[:n])
		}
		if err == io.EOF {
			d.eof = true
			continue
		}
		if err != nil {
			return Chunk{}, err
		}
	}
}

// NextText returns the text of the next chunk that carries any. Chunks with
// empty candidates are consumed silently.
func (d *Reader) NextText() (string, error) {
	for {
		c, err := d.Next()
		if err != nil {
			return "", err
		}
		if t := c.Text(); t != "" {
			return t, nil
		}
	}
}

// nextFrame pops one complete frame (everything before the next blank-line
// delimiter) off the buffer. Incomplete trailing data stays buffered for the
// next read.
func (d *Reader) nextFrame() (string, bool) {
	data := d.buf.Bytes()
	i := bytes.Index(data, []byte("\n\n"))
	if i < 0 {
		return "", false
	}
	frame := string(data[:i])
	d.buf.Next(i + 2)
	return strings.TrimRight(frame, "\r"), true
}

// Accumulate reads the stream to completion and concatenates every text
// fragment, mirroring how the browser client reconstructs the full reply.
func Accumulate(r io.Reader) (string, error) {
	d := NewReader(r)
	var sb strings.Builder
	for {
		c, err := d.Next()
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(c.Text())
	}
}
