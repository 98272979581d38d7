package stream

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type sample struct {
	Seq int `json:"seq"`
}

func TestEventHandlerStreamsJSON(t *testing.T) {
	b := NewBroadcaster[sample](4)
	b.Publish(sample{Seq: 1})

	srv := httptest.NewServer(NewEventHandler(b, "scene"))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	var data []string
	for lines.Scan() && len(data) < 2 {
		line := lines.Text()
		if strings.HasPrefix(line, "data: ") {
			data = append(data, strings.TrimPrefix(line, "data: "))
			if len(data) == 1 {
				// the handler is subscribed once the first event arrives
				b.Publish(sample{Seq: 2})
			}
		}
	}
	if len(data) != 2 || data[0] != `{"seq":1}` || data[1] != `{"seq":2}` {
		t.Errorf("events = %v", data)
	}
}
