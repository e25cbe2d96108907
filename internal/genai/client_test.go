package genai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// sseBody renders fragments in the provider's streaming frame shape.
func sseBody(fragments ...string) string {
	var sb strings.Builder
	for _, f := range fragments {
		fmt.Fprintf(&sb, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":%q}]}}]}\n\n", f)
	}
	return sb.String()
}

func TestStreamGenerate_NotConfigured(t *testing.T) {
	c := &Client{} // no API key
	err := c.StreamGenerate(context.Background(), GenerateRequest{}, func(string) error { return nil })
	if err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestStreamGenerate_StreamsFragmentsInOrder(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotKey = r.Header.Get("x-goog-api-key")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(sseBody("Hel", "lo, ", "world")))
	}))
	defer srv.Close()

	c := &Client{APIKey: "k1", BaseURL: srv.URL, Model: "gemini-2.0-flash"}

	var got []string
	err := c.StreamGenerate(context.Background(), GenerateRequest{
		Contents: []Content{TextContent("user", "hi")},
	}, func(text string) error {
		got = append(got, text)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamGenerate: %v", err)
	}

	if strings.Join(got, "") != "Hello, world" {
		t.Fatalf("fragments = %q", got)
	}
	if gotPath != "/models/gemini-2.0-flash:streamGenerateContent?alt=sse" {
		t.Fatalf("unexpected request path: %q", gotPath)
	}
	if gotKey != "k1" {
		t.Fatalf("api key header = %q", gotKey)
	}
}

func TestStreamGenerate_SkipsEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`data: {"candidates":[]}` + "\n\n" + sseBody("only")))
	}))
	defer srv.Close()

	c := &Client{APIKey: "k", BaseURL: srv.URL, Model: "m"}
	var got []string
	if err := c.StreamGenerate(context.Background(), GenerateRequest{}, func(text string) error {
		got = append(got, text)
		return nil
	}); err != nil {
		t.Fatalf("StreamGenerate: %v", err)
	}
	if len(got) != 1 || got[0] != "only" {
		t.Fatalf("fragments = %q", got)
	}
}

func TestStreamGenerate_Non200_ReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	c := &Client{APIKey: "k", BaseURL: srv.URL, Model: "m"}
	err := c.StreamGenerate(context.Background(), GenerateRequest{}, func(string) error {
		t.Fatal("onText must not be called on pre-stream failure")
		return nil
	})

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.Code != http.StatusTooManyRequests || !strings.Contains(se.Body, "quota exceeded") {
		t.Fatalf("unexpected StatusError: %+v", se)
	}
}

func TestStreamGenerate_CallbackErrorStopsPull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sseBody("a", "b", "c")))
	}))
	defer srv.Close()

	c := &Client{APIKey: "k", BaseURL: srv.URL, Model: "m"}
	boom := errors.New("consumer gone")
	calls := 0
	err := c.StreamGenerate(context.Background(), GenerateRequest{}, func(string) error {
		calls++
		return boom
	})
	if err != boom {
		t.Fatalf("expected callback error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected pull to stop after first callback error, got %d calls", calls)
	}
}

func TestStreamGenerate_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server watches the connection and cancels the
		// request context when the client disconnects; otherwise srv.Close
		// waits forever on this handler.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done() // hold the response open until the client gives up
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := &Client{APIKey: "k", BaseURL: srv.URL, Model: "m"}
	err := c.StreamGenerate(ctx, GenerateRequest{}, func(string) error { return nil })
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), 0)
	if _, ok := ctx.Deadline(); ok {
		t.Fatalf("expected no deadline for d<=0")
	}
	cancel()

	ctx, cancel = WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatalf("expected a deadline for d>0")
	}
}
