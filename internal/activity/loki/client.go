// Package loki pushes activity records to Grafana Loki's HTTP push API. The
// worker binary uses it to turn the Kafka activity stream into queryable log
// lines, one stream per session/action/status label set.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// jobLabel tags every pushed stream so gateway activity is easy to select.
const jobLabel = "wa-gateway"

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is one label set with its log entries, each entry being a
// [timestamp_ns, line] pair.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// labelSafe strips characters Loki label values cannot carry.
var labelSafe = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// recordFields picks out just the activity-record fields promoted to labels
// and the record timestamp.
type recordFields struct {
	SessionID string `json:"sessionId"`
	Action    string `json:"action"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"` // RFC3339
}

// PushRecordJSON pushes one activity record, as consumed from Kafka, to Loki.
// The session, action, and status become stream labels and the record's own
// timestamp is used. An unparseable payload is still pushed, as a raw line
// stamped with the current time, so nothing is silently dropped.
func PushRecordJSON(ctx context.Context, baseURL string, rawJSON []byte) error {
	labels := map[string]string{}
	ts := time.Now().UTC()
	var fields recordFields
	if err := json.Unmarshal(rawJSON, &fields); err == nil {
		if fields.SessionID != "" {
			labels["session_id"] = fields.SessionID
		}
		if fields.Action != "" {
			labels["action"] = fields.Action
		}
		if fields.Status != "" {
			labels["status"] = fields.Status
		}
		if t, ok := parseRecordTime(fields.CreatedAt); ok {
			ts = t
		}
	}
	return PushRecord(ctx, baseURL, ts, string(rawJSON), labels)
}

func parseRecordTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// PushRecord sends a single log line to Loki at baseURL (e.g.
// http://localhost:3100). Labels are sanitized before use; empty values are
// dropped. Returns an error when the request fails or Loki answers non-2xx.
func PushRecord(ctx context.Context, baseURL string, timestamp time.Time, line string, labels map[string]string) error {
	if baseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}

	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = jobLabel
	for k, v := range labels {
		if v := labelSafe.ReplaceAllString(strings.TrimSpace(v), "_"); v != "" {
			streamLabels[k] = v
		}
	}

	payload, err := json.Marshal(PushRequest{Streams: []Stream{{
		Stream: streamLabels,
		Values: [][]string{{strconv.FormatInt(timestamp.UnixNano(), 10), line}},
	}}})
	if err != nil {
		return err
	}

	url := strings.TrimSuffix(baseURL, "/") + "/loki/api/v1/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
