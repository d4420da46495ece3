package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmarins/livewire/internal/entity"
	"github.com/mmarins/livewire/internal/history"
	"go.uber.org/zap"
)

func decodePost(raw []byte) (entity.Entity, error) {
	return entity.DecodePost(raw)
}

func TestFetchPageBuildsQueryAndDecodes(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"posts":[{"id":"p1","createdAt":1},{"id":"p2","createdAt":2}],"totalCount":40,"limit":25}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zap.NewNop())
	f := c.Resource("/posts", "posts", decodePost)

	res, err := f.FetchPage(context.Background(), 2, 25, history.Filters{Query: "beach"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 2 || res.TotalCount != 40 {
		t.Errorf("result = %d items, total %d", len(res.Items), res.TotalCount)
	}

	req, _ := http.NewRequest(http.MethodGet, "http://x/?"+gotQuery, nil)
	q := req.URL.Query()
	if q.Get("page") != "2" || q.Get("limit") != "25" || q.Get("query") != "beach" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestFetchPageOmittedTotalCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"posts":[{"id":"p1","createdAt":1}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zap.NewNop())
	res, err := c.Resource("/posts", "posts", decodePost).FetchPage(context.Background(), 1, 25, history.Filters{})
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalCount != history.TotalUnknown {
		t.Errorf("TotalCount = %d, want TotalUnknown", res.TotalCount)
	}
}

func TestFetchPageSkipsMalformedItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"posts":[{"id":"p1"},{"noId":true},{"id":"p3"}],"totalCount":3}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zap.NewNop())
	res, err := c.Resource("/posts", "posts", decodePost).FetchPage(context.Background(), 1, 25, history.Filters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 2 {
		t.Errorf("got %d items, want 2", len(res.Items))
	}
}

func TestFetchPageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zap.NewNop())
	if _, err := c.Resource("/posts", "posts", decodePost).FetchPage(context.Background(), 1, 25, history.Filters{}); err == nil {
		t.Error("server error not surfaced")
	}
}

func TestFetchPageReceiverFilter(t *testing.T) {
	var gotReceiver string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReceiver = r.URL.Query().Get("receiverId")
		fmt.Fprint(w, `{"messages":[],"totalCount":0}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zap.NewNop())
	decodeMsg := func(raw []byte) (entity.Entity, error) { return entity.DecodeMessage(raw) }
	_, err := c.Resource("/messages", "messages", decodeMsg).FetchPage(context.Background(), 1, 30, history.Filters{ReceiverID: "u9"})
	if err != nil {
		t.Fatal(err)
	}
	if gotReceiver != "u9" {
		t.Errorf("receiverId = %q, want u9", gotReceiver)
	}
}
