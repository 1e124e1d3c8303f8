package generative

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeChat is a minimal chat completions endpoint that records request bodies.
type fakeChat struct {
	mu       sync.Mutex
	requests []map[string]any
	status   int
	content  string
	citation *[2]string
	calls    int
}

func (f *fakeChat) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	body, _ := io.ReadAll(r.Body)
	var req map[string]any
	_ = json.Unmarshal(body, &req)
	f.requests = append(f.requests, req)

	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 && f.status != http.StatusOK {
		w.WriteHeader(f.status)
		w.Write([]byte(`{"error":{"message":"nope","type":"insufficient_quota","param":null,"code":"insufficient_quota"}}`))
		return
	}

	annotations := []any{}
	if f.citation != nil {
		annotations = append(annotations, map[string]any{
			"type": "url_citation",
			"url_citation": map[string]any{
				"start_index": 0, "end_index": 5,
				"title": f.citation[0], "url": f.citation[1],
			},
		})
	}
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1767225600,
		"model":   DefaultModel,
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"logprobs":      nil,
			"message": map[string]any{
				"role":        "assistant",
				"content":     f.content,
				"refusal":     nil,
				"annotations": annotations,
			},
		}},
	})
}

func (f *fakeChat) lastRequest() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func newFakeClient(t *testing.T, f *fakeChat, cfg Config) *Client {
	t.Helper()
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	cfg.APIKey = "sk-test"
	cfg.BaseURL = server.URL + "/v1/"
	return NewClient(cfg)
}
