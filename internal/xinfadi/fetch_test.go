package xinfadi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"xinfadi_prices/internal/retry"
	"xinfadi_prices/internal/xinfadi"
)

type listingServer struct {
	mu       sync.Mutex
	pages    map[int][]map[string]any
	count    int
	failPage int
	requests []capturedRequest
}

type capturedRequest struct {
	query  url.Values
	header http.Header
}

func (s *listingServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != xinfadi.PricePath {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		s.mu.Lock()
		s.requests = append(s.requests, capturedRequest{query: r.URL.Query(), header: r.Header.Clone()})
		s.mu.Unlock()

		page, _ := strconv.Atoi(r.URL.Query().Get("current"))
		if page == s.failPage {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}

		list := s.pages[page]
		if list == nil {
			list = []map[string]any{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"list": list, "count": s.count})
	}
}

func (s *listingServer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func records(n int, prefix string) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{"prodName": fmt.Sprintf("%s-%d", prefix, i), "avgPrice": 1.5}
	}
	return out
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClient(t *testing.T, s *listingServer) *xinfadi.Client {
	srv := httptest.NewServer(s.handler(t))
	t.Cleanup(srv.Close)
	return xinfadi.NewClient(srv.URL, 0, xinfadi.WithSleeper(noSleep))
}

func TestFetchAllStopsWhenTotalReached(t *testing.T) {
	s := &listingServer{
		pages: map[int][]map[string]any{
			1: records(100, "a"),
			2: records(100, "b"),
			3: records(50, "c"),
		},
		count: 250,
	}
	client := newTestClient(t, s)

	result := client.FetchAll(context.Background(), xinfadi.FetchRequest{PageSize: 100})
	if result.Err != nil {
		t.Fatalf("Unexpected error: %v", result.Err)
	}
	if len(result.Records) != 250 {
		t.Errorf("Expected 250 records, got %d", len(result.Records))
	}
	if s.requestCount() != 3 {
		t.Errorf("Expected 3 requests, got %d", s.requestCount())
	}
	if result.Pages != 3 || result.Total != 250 {
		t.Errorf("Expected 3 pages of 250 total, got %d pages of %d", result.Pages, result.Total)
	}
	if result.Records[0]["prodName"] != "a-0" || result.Records[249]["prodName"] != "c-49" {
		t.Errorf("Records out of order: first %v last %v", result.Records[0]["prodName"], result.Records[249]["prodName"])
	}
}

func TestFetchAllRespectsMaxPages(t *testing.T) {
	s := &listingServer{
		pages: map[int][]map[string]any{
			1: records(10, "a"),
			2: records(10, "b"),
			3: records(10, "c"),
		},
		count: 1000,
	}
	client := newTestClient(t, s)

	result := client.FetchAll(context.Background(), xinfadi.FetchRequest{PageSize: 10, MaxPages: 2})
	if len(result.Records) != 20 {
		t.Errorf("Expected 20 records, got %d", len(result.Records))
	}
	if s.requestCount() != 2 {
		t.Errorf("Expected 2 requests, got %d", s.requestCount())
	}
}

func TestFetchAllStopsOnEmptyPage(t *testing.T) {
	s := &listingServer{
		pages: map[int][]map[string]any{1: records(5, "a")},
		count: 500,
	}
	client := newTestClient(t, s)

	result := client.FetchAll(context.Background(), xinfadi.FetchRequest{PageSize: 5})
	if result.Err != nil {
		t.Errorf("Empty page should not be an error, got %v", result.Err)
	}
	if len(result.Records) != 5 {
		t.Errorf("Expected 5 records, got %d", len(result.Records))
	}
	if s.requestCount() != 2 {
		t.Errorf("Expected 2 requests, got %d", s.requestCount())
	}
}

func TestFetchAllEmptyFirstPage(t *testing.T) {
	s := &listingServer{count: 0}
	client := newTestClient(t, s)

	result := client.FetchAll(context.Background(), xinfadi.FetchRequest{})
	if len(result.Records) != 0 {
		t.Errorf("Expected no records, got %d", len(result.Records))
	}
	if result.Records == nil {
		t.Error("Expected an empty, non-nil record slice")
	}
	if s.requestCount() != 1 {
		t.Errorf("Expected 1 request, got %d", s.requestCount())
	}
}

func TestFetchAllKeepsRecordsBeforeFailure(t *testing.T) {
	s := &listingServer{
		pages: map[int][]map[string]any{
			1: records(10, "a"),
			3: records(10, "c"),
		},
		count:    30,
		failPage: 2,
	}
	client := newTestClient(t, s)

	result := client.FetchAll(context.Background(), xinfadi.FetchRequest{PageSize: 10})
	if len(result.Records) != 10 {
		t.Errorf("Expected 10 records, got %d", len(result.Records))
	}
	if !result.Truncated() {
		t.Error("Expected the result to be marked truncated")
	}
	if s.requestCount() != 2 {
		t.Errorf("Expected 2 requests, got %d", s.requestCount())
	}
}

func TestFetchAllRetriesFailedPage(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"list": records(3, "a"), "count": 3})
	}))
	defer srv.Close()

	client := xinfadi.NewClient(srv.URL, 0,
		xinfadi.WithSleeper(noSleep),
		xinfadi.WithRetry(retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}),
	)

	result := client.FetchAll(context.Background(), xinfadi.FetchRequest{})
	if result.Err != nil {
		t.Fatalf("Expected retry to recover, got %v", result.Err)
	}
	if len(result.Records) != 3 {
		t.Errorf("Expected 3 records, got %d", len(result.Records))
	}
}

func TestFetchAllSleepsBetweenPages(t *testing.T) {
	s := &listingServer{
		pages: map[int][]map[string]any{
			1: records(2, "a"),
			2: records(2, "b"),
			3: records(2, "c"),
		},
		count: 6,
	}
	srv := httptest.NewServer(s.handler(t))
	defer srv.Close()

	var slept []time.Duration
	client := xinfadi.NewClient(srv.URL, 250*time.Millisecond, xinfadi.WithSleeper(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}))

	client.FetchAll(context.Background(), xinfadi.FetchRequest{PageSize: 2})
	if len(slept) != 2 {
		t.Fatalf("Expected 2 pauses between 3 pages, got %d", len(slept))
	}
	for _, d := range slept {
		if d != 250*time.Millisecond {
			t.Errorf("Expected 250ms pause, got %v", d)
		}
	}
}

func TestFetchPageSendsFilters(t *testing.T) {
	s := &listingServer{count: 0}
	client := newTestClient(t, s)

	filters := xinfadi.Filters{Category: "蔬菜", StartDate: "2024/01/01", EndDate: "2024/01/02"}
	if _, err := client.FetchPage(context.Background(), filters, 3, 50); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	r := s.requests[0]
	q := r.query
	expected := map[string]string{
		"limit":            "50",
		"current":          "3",
		"prodCat":          "蔬菜",
		"pubDateStartTime": "2024/01/01",
		"pubDateEndTime":   "2024/01/02",
	}
	for k, v := range expected {
		if q.Get(k) != v {
			t.Errorf("Query %s: expected %q, got %q", k, v, q.Get(k))
		}
	}
	if q.Has("prodName") {
		t.Error("Empty product name should not be sent")
	}
	if r.header.Get("X-Requested-With") != "XMLHttpRequest" {
		t.Errorf("Missing X-Requested-With header")
	}
	if client.GetAPICallCount() != 1 {
		t.Errorf("Expected 1 API call, got %d", client.GetAPICallCount())
	}
}

func TestFetchPageFallsBackToTotal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"list":[{"prodName":"x","avgPrice":"2.5"}],"count":0,"total":42}`))
	}))
	defer srv.Close()

	client := xinfadi.NewClient(srv.URL, 0)
	page, err := client.FetchPage(context.Background(), xinfadi.Filters{}, 1, 10)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if page.Total != 42 {
		t.Errorf("Expected total 42, got %d", page.Total)
	}
	if page.Records[0]["avgPrice"] != "2.5" {
		t.Errorf("Expected raw string price preserved, got %v", page.Records[0]["avgPrice"])
	}
}

func TestFetchPageRejectsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	client := xinfadi.NewClient(srv.URL, 0)
	if _, err := client.FetchPage(context.Background(), xinfadi.Filters{}, 1, 10); err == nil {
		t.Error("Expected a decode error")
	}
}
