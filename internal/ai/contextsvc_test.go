package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newContextServer(t *testing.T, h http.Handler) (*httptest.Server, *HTTPContextClient) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := NewHTTPContextClient(srv.URL, time.Second)
	c.Backoff = time.Millisecond
	return srv, c
}

func TestCreateContext_ReturnsHandle(t *testing.T) {
	var gotBody map[string]any
	_, c := newContextServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/contexts" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"handle": "ctx-123"})
	}))

	handle, err := c.CreateContext(context.Background(), "org1", "debates", "My debate", []Message{{Role: "system", Content: "topic"}})
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	if handle != "ctx-123" {
		t.Fatalf("handle = %q", handle)
	}
	if gotBody["org"] != "org1" || gotBody["namespace"] != "debates" {
		t.Fatalf("body not sent: %v", gotBody)
	}
}

func TestCreateContext_EmptyHandleIsError(t *testing.T) {
	_, c := newContextServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	if _, err := c.CreateContext(context.Background(), "o", "n", "x", nil); err == nil {
		t.Fatal("expected error for empty handle")
	}
}

func TestGetContextWindow_ParsesMessages(t *testing.T) {
	_, c := newContextServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/contexts/ctx-1/window" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("max_tokens") != "2000" || r.URL.Query().Get("strategy") != "recent" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []Message{{Role: "user", Content: "earlier turn"}},
		})
	}))

	msgs, err := c.GetContextWindow(context.Background(), "ctx-1", 2000, "recent")
	if err != nil {
		t.Fatalf("GetContextWindow: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "earlier turn" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls int32
	_, c := newContextServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := c.AppendToContext(context.Background(), "ctx-1", []Message{{Role: "user", Content: "x"}}); err != nil {
		t.Fatalf("AppendToContext: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDo_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	_, c := newContextServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))

	err := c.AppendToContext(context.Background(), "missing", nil)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("4xx retried: %d calls", calls)
	}
}
