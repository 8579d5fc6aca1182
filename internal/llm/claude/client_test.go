package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

func TestTextOf_ConcatenatesTextBlocks(t *testing.T) {
	t.Parallel()

	msg := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: `{"risk":`},
			{Type: "tool_use", ID: "ignored"},
			{Type: "text", Text: `"High"}`},
		},
	}

	if got := textOf(msg); got != `{"risk":"High"}` {
		t.Errorf("textOf = %q", got)
	}
}

func TestTextOf_Empty(t *testing.T) {
	t.Parallel()

	if got := textOf(&anthropic.Message{}); got != "" {
		t.Errorf("textOf(empty) = %q, want empty", got)
	}
}

func TestComplete_SendsPromptAndReturnsText(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("path = %q, want /v1/messages", r.URL.Path)
		}
		gotKey = r.Header.Get("X-Api-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "{\"risk\":\"Medium\",\"reason\":\"crowd\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	c := New("sk-test", "claude-test", option.WithBaseURL(srv.URL))
	out, err := c.Complete(context.Background(), "classify this")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"risk":"Medium","reason":"crowd"}` {
		t.Errorf("out = %q", out)
	}
	if gotKey != "sk-test" {
		t.Errorf("api key header = %q, want sk-test", gotKey)
	}
	if gotBody["model"] != "claude-test" {
		t.Errorf("model = %v, want claude-test", gotBody["model"])
	}
}

func TestComplete_ErrorStatusIsError(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
	}))
	defer srv.Close()

	c := New("sk-test", "claude-test", option.WithBaseURL(srv.URL))
	if _, err := c.Complete(context.Background(), "x"); err == nil {
		t.Fatal("expected error for 500 response")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (retries disabled)", calls)
	}
}
