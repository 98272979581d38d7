package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// ErrAnalysis matches every analysis Error.
var ErrAnalysis = errors.New("analysis failed")

// Error covers network failures, non-success statuses and unusable bodies.
type Error struct {
	Status int // HTTP status, 0 if no response
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("%s (status %d): %v", e.Msg, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s (status %d)", e.Msg, e.Status)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }
func (e *Error) Is(target error) bool {
	return target == ErrAnalysis
}

// Analyzer turns raw audio bytes into a Result.
type Analyzer interface {
	Analyze(ctx context.Context, audio []byte) (Result, error)
}

// ClientConfig configures the analysis service client.
type ClientConfig struct {
	URL     string // analysis endpoint, receives the raw audio as the POST body
	APIKey  string // static bearer token, ignored when client credentials are set
	Timeout time.Duration

	// Optional OAuth2 client-credentials flow.
	TokenURL     string
	ClientID     string
	ClientSecret string

	MaxRetries  int // 0 means the default, negative disables retries
	BaseBackoff time.Duration
}

const (
	defaultMaxRetries  = 2
	defaultBaseBackoff = 500 * time.Millisecond
	maxErrorBody       = 4 << 10
)

// Client communicates with the analysis REST API.
type Client struct {
	url         string
	apiKey      string
	http        *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// NewClient creates an analysis API client.
func NewClient(cfg ClientConfig) *Client {
	hc := &http.Client{Timeout: cfg.Timeout}
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		hc = cc.Client(context.Background())
		hc.Timeout = cfg.Timeout
	}

	c := &Client{
		url:         cfg.URL,
		apiKey:      cfg.APIKey,
		http:        hc,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
	}
	switch {
	case c.maxRetries == 0:
		c.maxRetries = defaultMaxRetries
	case c.maxRetries < 0:
		c.maxRetries = 0
	}
	if c.baseBackoff <= 0 {
		c.baseBackoff = defaultBaseBackoff
	}
	if cfg.TokenURL != "" {
		c.apiKey = ""
	}
	return c
}

type errorResp struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Analyze posts the audio and validates the response.
func (c *Client) Analyze(ctx context.Context, audio []byte) (Result, error) {
	resp, err := c.post(ctx, audio)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &Error{Status: resp.StatusCode, Msg: "read analysis response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var er errorResp
		msg := "analysis service error"
		if json.Unmarshal(body, &er) == nil && er.Error != "" {
			msg = er.Error
			if er.Details != "" {
				msg += ": " + er.Details
			}
		}
		return Result{}, &Error{Status: resp.StatusCode, Msg: msg}
	}

	return ParseResult(body)
}

// post sends the request, retrying on network errors, 429 and 5xx.
func (c *Client) post(ctx context.Context, audio []byte) (*http.Response, error) {
	attempts := c.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Msg: "analysis canceled", Err: err}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(audio))
		if err != nil {
			return nil, &Error{Msg: "create analysis request", Err: err}
		}
		req.Header.Set("Content-Type", "audio/mpeg")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		retryAfter, retry := shouldRetry(resp, err)
		if !retry {
			if err != nil {
				return nil, &Error{Msg: "analysis request failed", Err: err}
			}
			return resp, nil
		}

		last := attempt == c.maxRetries
		if err != nil {
			log.Printf("WARN analysis: attempt %d/%d failed: %v", attempt+1, attempts, err)
			if last {
				return nil, &Error{Msg: "analysis request failed", Err: err}
			}
		} else {
			log.Printf("WARN analysis: attempt %d/%d got status %d", attempt+1, attempts, resp.StatusCode)
			if last {
				return resp, nil
			}
			resp.Body.Close()
		}

		backoff := c.baseBackoff * time.Duration(1<<attempt)
		if retryAfter > 0 {
			backoff = retryAfter
		}
		if err := sleepWithContext(ctx, backoff); err != nil {
			return nil, &Error{Msg: "analysis canceled", Err: err}
		}
	}
	return nil, &Error{Msg: "analysis request failed"}
}

// Healthy reports whether the service answers on /health of its host.
func (c *Client) Healthy(ctx context.Context) bool {
	u, err := url.Parse(c.url)
	if err != nil {
		return false
	}
	u.Path, u.RawQuery = "/health", ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func shouldRetry(resp *http.Response, err error) (time.Duration, bool) {
	if err != nil {
		// context errors are final
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, false
		}
		return 0, true
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return parseRetryAfter(resp), true
	}
	return 0, false
}

func parseRetryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(v); err == nil {
		if until := time.Until(when); until > 0 {
			return until
		}
	}
	return 0
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
