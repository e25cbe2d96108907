// Package services – ChatService
//
// This file implements the ChatService, which turns a conversation plus
// optional reference documents into a streamed text completion. It validates
// the request, constructs the system instruction (generic assistant persona,
// or delimited reference-document blocks with grounding directives), maps
// conversation roles to the provider's turn shape, and pulls the provider's
// stream under a bounded timeout while honoring caller cancellation.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/nugsa/go-platform-backend/internal/genai"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// genericInstruction is used when the caller supplies no reference documents.
const genericInstruction = "You are a friendly and helpful assistant for the NUGSA-Germany student community. " +
	"Answer clearly and concisely, and use plain language."

// groundingDirectives follows the concatenated reference documents and pins
// the assistant to the supplied material.
const groundingDirectives = "You are the NUGSA-Germany assistant. Stay in persona at all times.\n" +
	"Answer questions using only the information contained in the files above.\n" +
	"If the answer is not in the provided material, say that you do not have that information.\n" +
	"Keep a friendly tone and use plain language."

// Turn is one conversation turn as submitted by the client. Role "user" maps
// to the provider's user role; anything else is treated as the model's side.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Document is caller-supplied reference text injected verbatim into the
// system instruction.
type Document struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// StreamProvider is the completion backend contract consumed by ChatService.
// genai.Client satisfies it; tests inject fakes.
type StreamProvider interface {
	// Configured reports whether a credential is present.
	Configured() bool
	// StreamGenerate streams a completion, invoking onText per fragment.
	StreamGenerate(ctx context.Context, req genai.GenerateRequest, onText func(string) error) error
}

// ChatService coordinates validation, instruction construction, and the
// provider's streaming call.
type ChatService struct {
	// Provider is the completion backend.
	Provider StreamProvider

	// UpstreamTimeout caps one completion end to end so a stalled provider
	// cannot hang the request forever. <= 0 disables the cap.
	UpstreamTimeout time.Duration

	// MaxDocumentBytes caps the combined size of reference documents; larger
	// requests are rejected with ErrContextTooLarge rather than truncated.
	MaxDocumentBytes int
}

// Stream validates the conversation and streams the completion, invoking
// onText for every text fragment as the provider produces it.
//
// Error semantics:
//   - ErrProviderNotConfigured: no credential; nothing was sent upstream.
//   - ErrEmptyConversation: no messages in the request.
//   - ErrContextTooLarge: reference documents exceed MaxDocumentBytes.
//   - Anything else comes from the provider call (including the onText
//     callback's own error, which stops the pull).
//
// Cancellation of ctx (client disconnect) propagates into the provider call
// and stops the upstream pull.
func (s *ChatService) Stream(ctx context.Context, messages []Turn, files []Document, onText func(string) error) error {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Stream",
		trace.WithAttributes(
			attribute.Int("chat.messages", len(messages)),
			attribute.Int("chat.files", len(files)),
		),
	)
	defer span.End()

	if s.Provider == nil || !s.Provider.Configured() {
		return ErrProviderNotConfigured
	}
	if len(messages) == 0 {
		return ErrEmptyConversation
	}
	if s.MaxDocumentBytes > 0 && combinedSize(files) > s.MaxDocumentBytes {
		return ErrContextTooLarge
	}

	req := genai.GenerateRequest{
		Contents:          transformTurns(messages),
		SystemInstruction: &genai.Content{Parts: []genai.Part{{Text: BuildSystemInstruction(files)}}},
	}

	ctx, cancel := genai.WithTimeout(ctx, s.UpstreamTimeout)
	defer cancel()

	return s.Provider.StreamGenerate(ctx, req, onText)
}

// BuildSystemInstruction returns the system instruction for the given
// reference documents: the generic assistant persona when there are none,
// otherwise each document wrapped in explicit START/END delimiters followed
// by the grounding directives. Document content is inserted verbatim.
func BuildSystemInstruction(files []Document) string {
	if len(files) == 0 {
		return genericInstruction
	}

	var sb strings.Builder
	for _, f := range files {
		sb.WriteString("--- START FILE: ")
		sb.WriteString(f.Name)
		sb.WriteString(" ---\n")
		sb.WriteString(f.Content)
		sb.WriteString("\n--- END FILE: ")
		sb.WriteString(f.Name)
		sb.WriteString(" ---\n\n")
	}
	sb.WriteString(groundingDirectives)
	return sb.String()
}

// transformTurns maps conversation turns to the provider's shape. "user"
// stays the user role; every other role (the SPA sends "model") becomes the
// model side.
func transformTurns(messages []Turn) []genai.Content {
	out := make([]genai.Content, 0, len(messages))
	for _, m := range messages {
		role := roleModel
		if m.Role == roleUser {
			role = roleUser
		}
		out = append(out, genai.TextContent(role, m.Text))
	}
	return out
}

// combinedSize sums the byte length of every document name and content.
func combinedSize(files []Document) int {
	total := 0
	for _, f := range files {
		total += len(f.Name) + len(f.Content)
	}
	return total
}
