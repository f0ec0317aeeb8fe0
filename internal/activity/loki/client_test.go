package loki

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestPushRecord(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %s, want /loki/api/v1/push", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	err := PushRecord(context.Background(), srv.URL, ts, `{"hello":"world"}`, map[string]string{
		"session_id": "s1",
		"action":     "otp_send",
	})
	if err != nil {
		t.Fatalf("PushRecord: %v", err)
	}

	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(got.Streams))
	}
	stream := got.Streams[0]
	if stream.Stream["job"] != "wa-gateway" {
		t.Errorf("job label = %q, want wa-gateway", stream.Stream["job"])
	}
	if stream.Stream["session_id"] != "s1" || stream.Stream["action"] != "otp_send" {
		t.Errorf("labels = %v", stream.Stream)
	}
	if len(stream.Values) != 1 || len(stream.Values[0]) != 2 {
		t.Fatalf("values = %v", stream.Values)
	}
	if stream.Values[0][1] != `{"hello":"world"}` {
		t.Errorf("line = %q", stream.Values[0][1])
	}
}

func TestPushRecordJSON_ExtractsLabels(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	raw := []byte(`{"id":"a1","sessionId":"s2","action":"connection_open","status":"success","createdAt":"2025-06-01T12:00:00Z"}`)
	if err := PushRecordJSON(context.Background(), srv.URL, raw); err != nil {
		t.Fatalf("PushRecordJSON: %v", err)
	}

	stream := got.Streams[0]
	if stream.Stream["session_id"] != "s2" {
		t.Errorf("session_id = %q, want s2", stream.Stream["session_id"])
	}
	if stream.Stream["status"] != "success" {
		t.Errorf("status = %q, want success", stream.Stream["status"])
	}
	wantNS := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixNano()
	if stream.Values[0][0] != strconv.FormatInt(wantNS, 10) {
		t.Errorf("timestamp = %s, want %d", stream.Values[0][0], wantNS)
	}
}

func TestPushRecord_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := PushRecord(context.Background(), srv.URL, time.Now(), "line", nil)
	if err == nil {
		t.Fatal("PushRecord should fail on non-2xx responses")
	}
}

func TestPushRecord_EmptyURL(t *testing.T) {
	if err := PushRecord(context.Background(), "", time.Now(), "line", nil); err == nil {
		t.Fatal("PushRecord with empty URL should fail")
	}
}
