package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gridmon/gridmon/internal/dispatch"
	"github.com/gridmon/gridmon/internal/domain"
	"github.com/gridmon/gridmon/internal/grid"
	"github.com/gridmon/gridmon/internal/health"
	"github.com/gridmon/gridmon/internal/infra/sqlite"
	"github.com/gridmon/gridmon/internal/query"
	"github.com/gridmon/gridmon/internal/stats"
	"github.com/gridmon/gridmon/internal/topic"
)

type testEnv struct {
	srv  *Server
	grid *grid.Grid
	db   *sqlite.DB
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	cfg := grid.DefaultConfig()
	cfg.Instance = "grid"
	g, err := grid.New(cfg, nil)
	if err != nil {
		t.Fatalf("grid.New() error: %v", err)
	}
	t.Cleanup(g.Close)

	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("sqlite.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	d := dispatch.New(g, "stats", nil)
	hub := topic.NewHub(topic.NewCatalog(g, d, time.Second, nil), nil,
		topic.Config{DefaultFrequency: 20 * time.Millisecond, MinFrequency: 10 * time.Millisecond}, nil)
	t.Cleanup(hub.Close)

	srv := NewServer(nil)
	srv.AddInstance("grid", &Instance{
		Source:        g,
		Stats:         d,
		Query:         query.NewEngine(g, query.WithTimeout(time.Second)),
		Hub:           hub,
		MemberTimeout: time.Second,
	})
	srv.SetHistory(db)
	srv.EnableMetrics()

	s := g.Set("numbers")
	for i := 1; i <= 5; i++ {
		s.Add(i)
	}
	m := g.Map("letters")
	m.Put("a", 1)
	m.Put("b", 2)
	m.Put("c", 3)
	g.Map("users")
	g.Queue("orders").Offer("o-1")

	return &testEnv{srv: srv, grid: g, db: db}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int) domain.ErrorMessage {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d: %s", w.Code, status, w.Body.String())
	}
	var msg domain.ErrorMessage
	decode(t, w, &msg)
	if msg.Type != domain.MessageTypeError || len(msg.Errors) == 0 {
		t.Errorf("error message = %+v", msg)
	}
	return msg
}

// ─── Status ─────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHealth_Checks(t *testing.T) {
	env := newTestServer(t)
	checker := health.NewChecker(time.Minute, health.MembersCheck(env.grid))
	checker.RunOnce(context.Background())
	env.srv.SetHealth(checker)

	if w := env.do(t, "GET", "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	env.grid.SetMemberDown(env.grid.Members()[0].Address, true)
	checker.RunOnce(context.Background())
	w := env.do(t, "GET", "/health", "")
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "degraded") {
		t.Errorf("status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestStatus(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, "GET", "/api/status", "")
	var body struct {
		Status    string           `json:"status"`
		History   bool             `json:"history"`
		Instances []instanceStatus `json:"instances"`
	}
	decode(t, w, &body)
	if body.Status != "running" || !body.History {
		t.Errorf("body = %+v", body)
	}
	if len(body.Instances) != 1 || body.Instances[0].Name != "grid" || body.Instances[0].Members != 3 {
		t.Errorf("instances = %+v", body.Instances)
	}
}

func TestUnknownInstance(t *testing.T) {
	env := newTestServer(t)
	expectError(t, env.do(t, "GET", "/api/instances/nope/summary", ""), http.StatusNotFound)
}

// ─── Cluster ────────────────────────────────────────────────────────────────

func TestSummary(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, "GET", "/api/instances/grid/summary", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var s stats.Summary
	decode(t, w, &s)
	if s.MembersCount != 3 || s.Counts[domain.KindMap] != 2 || s.Counts[domain.KindSet] != 1 {
		t.Errorf("summary = %+v", s)
	}
}

func TestMembers(t *testing.T) {
	env := newTestServer(t)
	var body struct {
		Members []domain.Member `json:"members"`
	}
	decode(t, env.do(t, "GET", "/api/instances/grid/members", ""), &body)
	if len(body.Members) != 3 {
		t.Errorf("members = %d, want 3", len(body.Members))
	}
}

func TestObjects(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, "GET", "/api/instances/grid/objects/map?filter=^l&page=1&page_size=10", "")
	var page stats.ObjectPage
	decode(t, w, &page)
	if page.Total != 1 || len(page.Objects) != 1 || page.Objects[0].Name != "letters" {
		t.Errorf("page = %+v", page)
	}

	expectError(t, env.do(t, "GET", "/api/instances/grid/objects/hashmap", ""), http.StatusBadRequest)
	expectError(t, env.do(t, "GET", "/api/instances/grid/objects/map?filter=([", ""), http.StatusBadRequest)
	expectError(t, env.do(t, "GET", "/api/instances/grid/objects/map?page=x", ""), http.StatusBadRequest)
}

// ─── Statistics ─────────────────────────────────────────────────────────────

func TestStats_Queue(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, "GET", "/api/instances/grid/stats/queue/orders", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Dispatched int                        `json:"dispatched"`
		Members    map[string]json.RawMessage `json:"members"`
		Aggregated domain.QueueStats          `json:"aggregated"`
	}
	decode(t, w, &body)
	if body.Dispatched != 3 || len(body.Members) != 3 {
		t.Errorf("dispatched=%d members=%d", body.Dispatched, len(body.Members))
	}
	if body.Aggregated.OwnedItemCount != 1 || body.Aggregated.Offers != 1 {
		t.Errorf("aggregated = %+v", body.Aggregated)
	}
}

func TestStats_UnsupportedKind(t *testing.T) {
	env := newTestServer(t)
	expectError(t, env.do(t, "GET", "/api/instances/grid/stats/set/numbers", ""), http.StatusBadRequest)
	expectError(t, env.do(t, "GET", "/api/instances/grid/stats/queue/orders?timeout=soon", ""), http.StatusBadRequest)
}

// ─── Queries ────────────────────────────────────────────────────────────────

func queryResults(t *testing.T, w *httptest.ResponseRecorder) []any {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Count   int   `json:"count"`
		Results []any `json:"results"`
	}
	decode(t, w, &body)
	if body.Count != len(body.Results) {
		t.Errorf("count %d != len(results) %d", body.Count, len(body.Results))
	}
	return body.Results
}

func TestQuery_Set(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, "POST", "/api/instances/grid/query/set/numbers", `{"predicate": "value % 2 == 0"}`)
	results := queryResults(t, w)

	got := make([]int, 0, len(results))
	for _, r := range results {
		got = append(got, int(r.(float64)))
	}
	sort.Ints(got)
	if len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Errorf("results = %v, want [2 4]", got)
	}
}

func TestQuery_Map(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, "POST", "/api/instances/grid/query/map/letters", `{"predicate": "value > 1"}`)
	results := queryResults(t, w)

	keys := make([]string, 0, len(results))
	for _, r := range results {
		keys = append(keys, r.(map[string]any)["key"].(string))
	}
	sort.Strings(keys)
	if strings.Join(keys, ",") != "b,c" {
		t.Errorf("keys = %v, want [b c]", keys)
	}
}

func TestQuery_EmptyCollection(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, "POST", "/api/instances/grid/query/list/nothing", `{"predicate": "true"}`)
	if results := queryResults(t, w); len(results) != 0 {
		t.Errorf("results = %v, want none", results)
	}
}

func TestQuery_BadRequests(t *testing.T) {
	env := newTestServer(t)
	expectError(t, env.do(t, "POST", "/api/instances/grid/query/set/numbers", `{"predicate": "value >"}`), http.StatusBadRequest)
	expectError(t, env.do(t, "POST", "/api/instances/grid/query/set/numbers", `{}`), http.StatusBadRequest)
	expectError(t, env.do(t, "POST", "/api/instances/grid/query/set/numbers", `not json`), http.StatusBadRequest)
	expectError(t, env.do(t, "POST", "/api/instances/grid/query/topic/events", `{"predicate": "true"}`), http.StatusBadRequest)
}

func TestQuery_OwnerDown(t *testing.T) {
	env := newTestServer(t)
	owner, err := env.grid.Owner("numbers")
	if err != nil {
		t.Fatalf("Owner() error: %v", err)
	}
	env.grid.SetMemberDown(owner.Address, true)

	msg := expectError(t, env.do(t, "POST", "/api/instances/grid/query/set/numbers", `{"predicate": "true"}`), http.StatusBadGateway)
	if !strings.Contains(msg.Errors[0], "error while querying set numbers") {
		t.Errorf("error = %q", msg.Errors[0])
	}
}

// ─── History ────────────────────────────────────────────────────────────────

func TestHistory(t *testing.T) {
	env := newTestServer(t)
	p, err := stats.NewProducer(dispatch.New(env.grid, "stats", nil), "grid", domain.KindQueue, "orders")
	if err != nil {
		t.Fatalf("NewProducer() error: %v", err)
	}
	for i := 0; i < 3; i++ {
		product, err := p.Produce(context.Background())
		if err != nil {
			t.Fatalf("Produce() error: %v", err)
		}
		if err := topic.Save(env.db, product); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
	}

	var body struct {
		Instance string                 `json:"instance"`
		Products []sqlite.ProductRecord `json:"products"`
	}
	decode(t, env.do(t, "GET", "/api/history/queue/orders?limit=2", ""), &body)
	if body.Instance != "grid" || len(body.Products) != 2 {
		t.Errorf("instance=%q products=%d", body.Instance, len(body.Products))
	}
}

func TestHistory_Disabled(t *testing.T) {
	env := newTestServer(t)
	env.srv.history = nil
	expectError(t, env.do(t, "GET", "/api/history/queue/orders", ""), http.StatusNotFound)
}

// ─── Topics ─────────────────────────────────────────────────────────────────

func TestTopic_SSE(t *testing.T) {
	env := newTestServer(t)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/instances/grid/topics/stats?frequency=10ms", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			event = v
		}
		if v, ok := strings.CutPrefix(line, "data: "); ok {
			data = v
			break
		}
	}
	if event != topic.NoticeProduct {
		t.Errorf("event = %q, want %q", event, topic.NoticeProduct)
	}
	var n struct {
		Topic   string        `json:"topic"`
		Payload stats.Summary `json:"payload"`
	}
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	if n.Topic != "stats" || n.Payload.MembersCount != 3 {
		t.Errorf("notice = %+v", n)
	}
}

func TestTopic_SSE_HugePageSize(t *testing.T) {
	env := newTestServer(t)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET",
		ts.URL+"/api/instances/grid/topics/objects/map?page=3&page_size=4611686018427387904&frequency=10ms", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			event = v
		}
		if v, ok := strings.CutPrefix(line, "data: "); ok {
			data = v
			break
		}
	}
	if event != topic.NoticeProduct {
		t.Fatalf("event = %q, want %q (data %s)", event, topic.NoticeProduct, data)
	}
	var n struct {
		Payload stats.ObjectPage `json:"payload"`
	}
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	if n.Payload.Total != 2 || len(n.Payload.Objects) != 0 {
		t.Errorf("page = %+v, want total 2 and no objects", n.Payload)
	}

	if w := env.do(t, "GET", "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health after stream = %d", w.Code)
	}
}

func TestTopic_Unknown(t *testing.T) {
	env := newTestServer(t)
	expectError(t, env.do(t, "GET", "/api/instances/grid/topics/weather", ""), http.StatusNotFound)
	expectError(t, env.do(t, "GET", "/api/instances/grid/topics/stats?frequency=often", ""), http.StatusBadRequest)
}

// ─── Middleware ─────────────────────────────────────────────────────────────

func TestMetricsEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.do(t, "GET", "/api/instances/grid/stats/queue/orders", "")
	w := env.do(t, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "gridmon_dispatch_total") {
		t.Error("metrics output should contain gridmon_dispatch_total")
	}
}

func TestCORS(t *testing.T) {
	env := newTestServer(t)
	env.srv.SetCORSOrigins([]string{"http://dash.local"})

	req := httptest.NewRequest("OPTIONS", "/api/status", nil)
	req.Header.Set("Origin", "http://dash.local")
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "http://dash.local" {
		t.Errorf("status=%d origin=%q", w.Code, w.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://evil.local")
	w = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unlisted origin should not be allowed")
	}
}
