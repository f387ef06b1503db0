package cli

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFormatStat(t *testing.T) {
	tests := []struct {
		field string
		value any
		want  string
	}{
		{"offers", float64(1234567), "1,234,567"},
		{"min_age", float64(1500 * time.Millisecond), "1.5s"},
		{"total_execution_time", float64(2 * time.Second), "2s"},
		{"creation_time", "0001-01-01T00:00:00Z", "-"},
		{"anything", nil, "-"},
		{"label", "plain", "plain"},
	}
	for _, tt := range tests {
		if got := formatStat(tt.field, tt.value); got != tt.want {
			t.Errorf("formatStat(%q, %v) = %q, want %q", tt.field, tt.value, got, tt.want)
		}
	}
}

func TestClient_DecodesErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"errors":["unknown instance \"x\""]}`)
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	err := c.get(c.instancePath("x", "summary"), nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "unknown instance") {
		t.Errorf("error = %q", err)
	}
}

func TestClient_InstancePathEscapes(t *testing.T) {
	c := newClient("http://localhost:8480/")
	got := c.instancePath("dev", "stats", "queue", "a b")
	if got != "/api/instances/dev/stats/queue/a%20b" {
		t.Errorf("instancePath = %q", got)
	}
	if c.base != "http://localhost:8480" {
		t.Errorf("base = %q", c.base)
	}
}

func TestReadEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: product\ndata: {\"a\":1}\n\nevent: error\ndata: {\"errors\":[\"x\"]}\n\n")
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var events []string
	err = readEvents(t.Context(), resp, func(event, data string) {
		events = append(events, event+" "+data)
	})
	if err != nil {
		t.Fatalf("readEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %v", events)
	}
	if events[0] != `product {"a":1}` {
		t.Errorf("first = %q", events[0])
	}
	if !strings.HasPrefix(events[1], "error ") {
		t.Errorf("second = %q", events[1])
	}
}
