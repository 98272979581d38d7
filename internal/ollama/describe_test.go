package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/satindergrewal/harmonia/internal/analysis"
)

func TestClean(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  plain sentence  ", "plain sentence"},
		{`"quoted words"`, "quoted words"},
		{"<think>hmm</think>\nafter thinking", "after thinking"},
		{"Description: a slow bloom", "a slow bloom"},
		{"Here is a description: warm haze", "warm haze"},
	}
	for _, tt := range tests {
		if got := clean(tt.in); got != tt.want {
			t.Errorf("clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// fakeOllama answers /api/generate with replies in order and records prompts.
func fakeOllama(t *testing.T, replies ...string) (*httptest.Server, *[]string) {
	t.Helper()
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[]}`))
		case "/api/generate":
			var req generateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("bad request body: %v", err)
			}
			if req.Stream {
				t.Error("stream should be false")
			}
			prompts = append(prompts, req.Prompt)
			reply := replies[0]
			if len(replies) > 1 {
				replies = replies[1:]
			}
			json.NewEncoder(w).Encode(generateResponse{Response: reply, Done: true})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &prompts
}

func record() *analysis.FeatureRecord {
	return analysis.NewFeatureRecord(analysis.Result{BPM: 128, Key: "A", Mode: "major", Arousal: 8, Valence: 8}, "x.mp3", 0)
}

func TestDescribe(t *testing.T) {
	srv, prompts := fakeOllama(t, `"A bright rush of color that keeps climbing upward."`, "A warm surge that refuses to sit still for long.")
	c := NewClient(srv.URL+"/", "test-model", time.Second)
	if !c.Available(context.Background()) {
		t.Fatal("fake server not available")
	}
	d := NewDescriber(c)
	rec := record()

	first := d.Describe(context.Background(), rec)
	if first != "A bright rush of color that keeps climbing upward." {
		t.Errorf("first = %q", first)
	}
	second := d.Describe(context.Background(), rec)
	if second == "" || second == first {
		t.Errorf("second = %q", second)
	}

	if len(*prompts) != 2 {
		t.Fatalf("prompts = %d", len(*prompts))
	}
	if !strings.Contains((*prompts)[0], "Mood: Happy/Excited") || !strings.Contains((*prompts)[0], "128 BPM") {
		t.Errorf("prompt = %q", (*prompts)[0])
	}
	if !strings.Contains((*prompts)[1], "do NOT repeat this): "+first) {
		t.Errorf("second prompt lacks previous description: %q", (*prompts)[1])
	}
}

func TestDescribeRejectsUnusable(t *testing.T) {
	srv, _ := fakeOllama(t, "ok")
	d := NewDescriber(NewClient(srv.URL, "m", time.Second))
	if got := d.Describe(context.Background(), record()); got != "" {
		t.Errorf("short reply accepted: %q", got)
	}
}

func TestDescribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "missing", time.Second)
	if _, err := c.Generate(context.Background(), "", "hi"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Generate err = %v", err)
	}
	if got := NewDescriber(c).Describe(context.Background(), record()); got != "" {
		t.Errorf("Describe on error = %q", got)
	}
	if c.Available(context.Background()) {
		t.Error("Available should be false on 404")
	}
}
