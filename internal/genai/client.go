// Package genai is a minimal client for a Gemini-style generative language
// REST API. It covers exactly what the chat relay needs: one streaming
// completion call whose incremental text fragments are handed to a callback
// as they arrive.
//
// The provider's streaming endpoint (`models/<model>:streamGenerateContent`
// with `alt=sse`) answers with the same SSE framing this backend re-emits to
// browsers, so the response body is decoded with the shared sse.Reader.
//
// Cancellation: the request is bound to the caller's context. When the
// downstream consumer disappears (client disconnect) the relay cancels that
// context, the in-flight read fails, and the response body is closed —
// stopping the provider from generating unread output.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nugsa/go-platform-backend/internal/sse"
)

// Sentinel errors for predictable failure modes. Handlers map these to HTTP
// results; everything else is treated as an upstream failure.
var (
	// ErrNotConfigured is returned when no API credential is set.
	ErrNotConfigured = errors.New("genai: api key not configured")
)

// StatusError reports a non-2xx response from the provider before any
// streaming began.
type StatusError struct {
	Code int    // upstream HTTP status
	Body string // truncated upstream body, for diagnostics
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("genai: upstream status %d: %s", e.Code, e.Body)
}

// Content is one conversation turn in the provider's shape. Role is "user"
// or "model"; system instructions omit the role.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part carries one text segment of a turn.
type Part struct {
	Text string `json:"text"`
}

// TextContent builds a single-part content with the given role.
func TextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{{Text: text}}}
}

// GenerateRequest is the payload for a streaming completion call.
type GenerateRequest struct {
	Contents          []Content `json:"contents"`
	SystemInstruction *Content  `json:"systemInstruction,omitempty"`
}

// Client calls the provider's REST API. The zero value is not usable; fill
// in APIKey, BaseURL, and Model (main wires them from config).
type Client struct {
	// APIKey authenticates every call. Empty means not configured.
	APIKey string
	// BaseURL is the REST root without trailing slash,
	// e.g. "https://generativelanguage.googleapis.com/v1beta".
	BaseURL string
	// Model names the completion model, e.g. "gemini-2.0-flash".
	Model string
	// HTTPClient is used for all requests; http.DefaultClient when nil.
	// Deliberately no Timeout here: streaming responses are open-ended and
	// bounded by the caller's context instead.
	HTTPClient *http.Client
}

// Configured reports whether the client has a credential.
func (c *Client) Configured() bool { return strings.TrimSpace(c.APIKey) != "" }

// maxErrBody caps how much of an upstream error body is retained.
const maxErrBody = 2048

// StreamGenerate requests a streaming completion and invokes onText for every
// text fragment as it arrives. It returns nil when the upstream stream ends
// normally, the onText error when the callback fails (which stops the pull
// and releases the upstream connection), ErrNotConfigured without any network
// activity when no credential is set, and a *StatusError when the provider
// rejects the request before streaming.
func (c *Client) StreamGenerate(ctx context.Context, req GenerateRequest, onText func(string) error) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse",
		strings.TrimRight(c.BaseURL, "/"), c.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.APIKey)

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	dec := sse.NewReader(resp.Body)
	for {
		chunk, err := dec.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		text := chunk.Text()
		if text == "" {
			continue
		}
		if err := onText(text); err != nil {
			return err
		}
	}
}

// WithTimeout derives a context bounded by d when d > 0, mirroring how main
// caps one completion end to end. The caller must invoke the returned cancel.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
