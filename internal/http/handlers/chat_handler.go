// Chat HTTP handler.
//
// This file exposes the streaming assistant endpoint:
//   - POST /chat  (relay a conversation to the generative model, stream the reply)
//
// The reply is streamed as Server-Sent Events in the upstream provider's frame
// shape, so existing browser clients can consume either source unchanged. The
// stream has no terminal sentinel: a clean connection close signals completion.
//
// Error contract: this endpoint predates the envelope in response.go and keeps
// its original wire shape for browser compatibility. Any failure before the
// first frame is written returns JSON 500 `{error, details?}` and never opens
// a stream. Once streaming has begun, a failure aborts the connection without
// a trailing frame; the client keeps whatever partial output it received.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nugsa/go-platform-backend/internal/genai"
	"github.com/nugsa/go-platform-backend/internal/http/middleware"
	"github.com/nugsa/go-platform-backend/internal/services"
	"github.com/nugsa/go-platform-backend/internal/sse"
)

// ChatStreamer defines the streaming conversation operation.
//
// Implementations must honor ctx for cancellation (a disconnected client must
// stop the upstream pull) and must call onText sequentially, in order.
type ChatStreamer interface {
	Stream(ctx context.Context, messages []services.Turn, files []services.Document, onText func(string) error) error
}

//
// DTOs
//

// ChatMessage is one conversation turn as sent by the browser client.
type ChatMessage struct {
	// Role is "user" for user turns; anything else is treated as the assistant.
	Role string `json:"role" example:"user"`
	// Text is the turn content.
	Text string `json:"text" example:"When is the next general assembly?"`
}

// ChatFile is an optional reference document grounding the assistant's answers.
type ChatFile struct {
	Name    string `json:"name" example:"constitution.md"`
	Content string `json:"content"`
}

// ChatRequest is the JSON payload for a streaming chat completion.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	Files    []ChatFile    `json:"files,omitempty"`
}

// ChatErrorResponse is the pre-stream error body for the chat endpoint.
// It deliberately differs from ErrorResponse; see the file comment.
type ChatErrorResponse struct {
	Error   string `json:"error" example:"failed to process chat request"`
	Details string `json:"details,omitempty"`
}

// chatFail writes the endpoint-specific JSON 500 error body and logs it with
// the request-scoped logger. Only valid before any stream bytes were written.
func chatFail(c *gin.Context, msg, details string) {
	lg := middleware.LoggerFrom(c)
	lg.Error().
		Str("message", msg).
		Str("details", details).
		Msg("chat request failed")
	c.AbortWithStatusJSON(http.StatusInternalServerError, ChatErrorResponse{
		Error:   msg,
		Details: details,
	})
}

// Chat godoc
// @ID          chatStream
// @Summary     Stream an assistant reply
// @Description Relays the conversation (plus optional grounding documents) to the
// @Description generative model and streams the reply as Server-Sent Events. Each
// @Description frame is `data: <json>` in the provider's chunk shape; the stream
// @Description ends with a clean connection close, no terminal sentinel.
// @Tags        Chat
// @Accept      json
// @Produce     text/event-stream
//
// @Param       body  body  handlers.ChatRequest  true  "Conversation payload"
//
// @Success     200  {string}  string  "SSE stream of data frames"
// @Failure     500  {object}  handlers.ChatErrorResponse "Pre-stream failure"
// @Router      /chat [post]
func (h *Handlers) Chat(c *gin.Context) {
	ctx := c.Request.Context()

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		chatFail(c, "failed to process chat request", "invalid request body")
		return
	}

	messages := make([]services.Turn, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, services.Turn{Role: m.Role, Text: m.Text})
	}
	files := make([]services.Document, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, services.Document{Name: f.Name, Content: f.Content})
	}

	// Headers are written lazily so a pre-stream failure can still produce a
	// JSON error response.
	var w *sse.Writer
	started := false
	begin := func() {
		hd := c.Writer.Header()
		hd.Set("Content-Type", "text/event-stream")
		hd.Set("Cache-Control", "no-cache")
		hd.Set("Connection", "keep-alive")
		c.Status(http.StatusOK)
		w = sse.NewWriter(c.Writer)
		started = true
	}

	err := h.chatSvc.Stream(ctx, messages, files, func(text string) error {
		if !started {
			begin()
		}
		return w.WriteText(text)
	})
	if err != nil {
		if started {
			// The stream is already committed; sever the connection so the
			// client sees a truncated body instead of a clean stream end.
			// Recovery() re-panics this sentinel and net/http closes the
			// connection without the terminal chunk.
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Msg("chat stream aborted mid-flight")
			panic(http.ErrAbortHandler)
		}
		switch {
		case errors.Is(err, services.ErrProviderNotConfigured):
			chatFail(c, "failed to process chat request", "generative model is not configured")
		case errors.Is(err, services.ErrEmptyConversation):
			chatFail(c, "failed to process chat request", "messages required")
		case errors.Is(err, services.ErrContextTooLarge):
			chatFail(c, "failed to process chat request", "reference documents too large")
		default:
			var se *genai.StatusError
			if errors.As(err, &se) {
				chatFail(c, "failed to process chat request", se.Error())
				return
			}
			chatFail(c, "failed to process chat request", err.Error())
		}
		return
	}

	// A conversation can legally produce zero frames; still commit an empty,
	// well-formed event stream.
	if !started {
		begin()
	}
}
