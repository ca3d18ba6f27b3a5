package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"OpenAgent-Sim/internal/llm"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error when api key is missing")
	}
}

func TestGenerateJoinsTextBlocks(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "secret" {
			t.Errorf("api key header missing")
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-3-5-haiku-latest",
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 3},
			"content": []map[string]any{
				{"type": "text", "text": "yes"},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "secret", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := client.Generate(context.Background(), llm.Request{System: "oracle", Prompt: "Is it raining?", Stop: []string{"\n\n"}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "yes" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if body["max_tokens"] != float64(defaultMaxTokens) {
		t.Fatalf("default max tokens not sent: %v", body["max_tokens"])
	}
	if _, ok := body["system"]; !ok {
		t.Fatalf("system prompt not sent")
	}
}
