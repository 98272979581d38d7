package analysis

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestAnalyzeSuccess(t *testing.T) {
	var gotBody []byte
	var gotAuth, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"bpm":98,"key":"D","mode":"minor","rms":0.3,"arousal":7,"valence":6}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{URL: srv.URL, APIKey: "secret", Timeout: time.Second})
	r, err := c.Analyze(context.Background(), []byte("audio"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if string(gotBody) != "audio" {
		t.Errorf("body = %q", gotBody)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotType != "audio/mpeg" {
		t.Errorf("content type = %q, want audio/mpeg", gotType)
	}
	if r.BPM != 98 || r.Arousal != 7 || r.Key != "D" {
		t.Errorf("result = %+v", r)
	}
}

func TestAnalyzeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"arousal":2,"valence":2}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{URL: srv.URL, Timeout: time.Second, BaseBackoff: time.Millisecond})
	if _, err := c.Analyze(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestAnalyzeRetryBudget(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		status     int
		wantCalls  int32
		wantErr    bool
	}{
		{"retries disabled still sends once", -1, http.StatusOK, 1, false},
		{"retries disabled gives up after one failure", -1, http.StatusServiceUnavailable, 1, true},
		{"default retries twice", 0, http.StatusServiceUnavailable, 3, true},
		{"explicit budget", 3, http.StatusServiceUnavailable, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"arousal":5,"valence":5}`))
			}))
			defer srv.Close()

			c := NewClient(ClientConfig{
				URL:         srv.URL,
				Timeout:     time.Second,
				MaxRetries:  tt.maxRetries,
				BaseBackoff: time.Millisecond,
			})
			r, err := c.Analyze(context.Background(), []byte("x"))
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrAnalysis) {
					t.Errorf("err = %v, want ErrAnalysis", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if r.Arousal != 5 || r.Valence != 5 {
				t.Errorf("result = %+v", r)
			}
		})
	}
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{"client error with details", http.StatusBadRequest, `{"error":"bad file","details":"too short"}`, 400},
		{"persistent server error", http.StatusInternalServerError, `oops`, 500},
		{"missing arousal", http.StatusOK, `{"valence":4}`, 0},
		{"malformed json", http.StatusOK, `{"arousal":`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(ClientConfig{URL: srv.URL, Timeout: time.Second, BaseBackoff: time.Millisecond})
			_, err := c.Analyze(context.Background(), []byte("x"))
			if !errors.Is(err, ErrAnalysis) {
				t.Fatalf("err = %v, want ErrAnalysis", err)
			}
			var ae *Error
			if !errors.As(err, &ae) {
				t.Fatal("expected *Error")
			}
			if ae.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d", ae.Status, tt.wantStatus)
			}
		})
	}
}

func TestAnalyzeNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(ClientConfig{URL: url, Timeout: time.Second, BaseBackoff: time.Millisecond})
	if _, err := c.Analyze(context.Background(), []byte("x")); !errors.Is(err, ErrAnalysis) {
		t.Fatalf("err = %v, want ErrAnalysis", err)
	}
}

func TestAnalyzeCanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.ReadAll(r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c := NewClient(ClientConfig{URL: srv.URL, Timeout: 5 * time.Second})
	_, err := c.Analyze(ctx, []byte("x"))
	if !errors.Is(err, ErrAnalysis) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestClientCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"tok123","token_type":"bearer","expires_in":3600}`))
		case "/analyze":
			if r.Header.Get("Authorization") != "Bearer tok123" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"arousal":1,"valence":9}`))
		}
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		URL:          srv.URL + "/analyze",
		APIKey:       "ignored",
		Timeout:      time.Second,
		TokenURL:     srv.URL + "/token",
		ClientID:     "id",
		ClientSecret: "secret",
	})
	r, err := c.Analyze(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if r.Valence != 9 {
		t.Errorf("valence = %v", r.Valence)
	}
}

func TestHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{URL: srv.URL + "/api/analyze", Timeout: time.Second})
	if !c.Healthy(context.Background()) {
		t.Error("expected healthy")
	}
}

type countingAnalyzer struct {
	calls int
	err   error
}

func (a *countingAnalyzer) Analyze(ctx context.Context, audio []byte) (Result, error) {
	a.calls++
	if a.err != nil {
		return Result{}, a.err
	}
	return Result{BPM: 90, Key: "E", Mode: "major", Arousal: 3, Valence: 8}, nil
}

func TestCachedAnalyzer(t *testing.T) {
	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	defer cache.Close()

	next := &countingAnalyzer{}
	a := NewCachedAnalyzer(next, cache)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r, err := a.Analyze(ctx, []byte("same bytes"))
		if err != nil {
			t.Fatal(err)
		}
		if r.Key != "E" || r.Valence != 8 {
			t.Errorf("result = %+v", r)
		}
	}
	if next.calls != 1 {
		t.Errorf("service called %d times, want 1", next.calls)
	}

	a.Analyze(ctx, []byte("other bytes"))
	if n, err := cache.Count(ctx); err != nil || n != 2 {
		t.Errorf("Count = %d, %v; want 2", n, err)
	}
}

func TestCachedAnalyzerDoesNotCacheFailures(t *testing.T) {
	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	next := &countingAnalyzer{err: &Error{Msg: "down"}}
	a := NewCachedAnalyzer(next, cache)
	for i := 0; i < 2; i++ {
		if _, err := a.Analyze(context.Background(), []byte("x")); !errors.Is(err, ErrAnalysis) {
			t.Fatalf("err = %v", err)
		}
	}
	if next.calls != 2 {
		t.Errorf("calls = %d, want 2", next.calls)
	}
}

func TestCachePutReplaces(t *testing.T) {
	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()
	ctx := context.Background()

	d := Digest([]byte("a"))
	if _, ok, err := cache.Get(ctx, d); ok || err != nil {
		t.Fatalf("empty Get = %v, %v", ok, err)
	}
	cache.Put(ctx, d, Result{Arousal: 1})
	cache.Put(ctx, d, Result{Arousal: 2})
	r, ok, err := cache.Get(ctx, d)
	if !ok || err != nil || r.Arousal != 2 {
		t.Errorf("Get = %+v, %v, %v", r, ok, err)
	}
}
