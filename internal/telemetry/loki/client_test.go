package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

type pushCapture struct {
	mu   sync.Mutex
	reqs []PushRequest
}

func newLokiServer(t *testing.T, status int) (*httptest.Server, *pushCapture) {
	t.Helper()
	capture := &pushCapture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s, want POST /loki/api/v1/push", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		var body PushRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode push body: %v", err)
		}
		capture.mu.Lock()
		capture.reqs = append(capture.reqs, body)
		capture.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, capture
}

func TestPushEventJSON_LabelsAndTimestamp(t *testing.T) {
	srv, capture := newLokiServer(t, http.StatusNoContent)
	c := NewClient(srv.URL + "/")
	raw := []byte(`{"deviceKey":"udid-1","userId":"42","eventType":"lock_applied","source":"classlock","createdAt":"2026-03-01T09:30:00Z"}`)

	if err := c.PushEventJSON(context.Background(), raw); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if len(capture.reqs) != 1 || len(capture.reqs[0].Streams) != 1 {
		t.Fatalf("pushes = %+v, want one stream", capture.reqs)
	}
	stream := capture.reqs[0].Streams[0]
	want := map[string]string{"job": "classlock", "event_type": "lock_applied", "source": "classlock"}
	for k, v := range want {
		if stream.Stream[k] != v {
			t.Errorf("label %q = %q, want %q", k, stream.Stream[k], v)
		}
	}
	if _, ok := stream.Stream["deviceKey"]; ok {
		t.Error("device key should not be a label")
	}
	wantTS := strconv.FormatInt(time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC).UnixNano(), 10)
	if stream.Values[0][0] != wantTS {
		t.Errorf("timestamp = %s, want %s", stream.Values[0][0], wantTS)
	}
	if stream.Values[0][1] != string(raw) {
		t.Errorf("line = %s, want raw event", stream.Values[0][1])
	}
}

func TestPushEventJSON_UnparseableLine(t *testing.T) {
	srv, capture := newLokiServer(t, http.StatusNoContent)
	c := NewClient(srv.URL)
	if err := c.PushEventJSON(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	stream := capture.reqs[0].Streams[0]
	if len(stream.Stream) != 1 || stream.Stream["job"] != "classlock" {
		t.Errorf("labels = %v, want only job", stream.Stream)
	}
}

func TestPushEvent_SanitizesLabels(t *testing.T) {
	srv, capture := newLokiServer(t, http.StatusNoContent)
	c := NewClient(srv.URL)
	err := c.PushEvent(context.Background(), time.Now(), "line", map[string]string{"event_type": " lock applied!", "empty": "  "})
	if err != nil {
		t.Fatalf("PushEvent: %v", err)
	}
	labels := capture.reqs[0].Streams[0].Stream
	if labels["event_type"] != "lock_applied_" {
		t.Errorf("event_type = %q, want %q", labels["event_type"], "lock_applied_")
	}
	if _, ok := labels["empty"]; ok {
		t.Error("blank label should be dropped")
	}
}

func TestPushEvent_Non2xx(t *testing.T) {
	srv, _ := newLokiServer(t, http.StatusBadRequest)
	if err := NewClient(srv.URL).PushEvent(context.Background(), time.Now(), "line", nil); err == nil {
		t.Fatal("PushEvent should fail on 400")
	}
}

func TestPushEvent_EmptyBaseURL(t *testing.T) {
	if err := NewClient("").PushEvent(context.Background(), time.Now(), "line", nil); err == nil {
		t.Fatal("PushEvent with empty base URL should return error")
	}
}
