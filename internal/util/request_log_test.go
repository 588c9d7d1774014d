package util

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestLogRecordsStatusAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h := WithRequestID(WithRequestLog("letter", nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	})))
	req := httptest.NewRequest(http.MethodPost, "/set_company", nil)
	req.Header.Set("X-Request-Id", "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["msg"] != "http_request" || line["service"] != "letter" {
		t.Fatalf("unexpected line: %v", line)
	}
	if line["status"] != float64(http.StatusTeapot) || line["bytes"] != float64(5) {
		t.Fatalf("status/bytes = %v/%v", line["status"], line["bytes"])
	}
	if line["request_id"] != "req-42" || line["path"] != "/set_company" {
		t.Fatalf("request_id/path = %v/%v", line["request_id"], line["path"])
	}
}

func TestStatusRecorderDefaultsTo200(t *testing.T) {
	rec := &StatusRecorder{ResponseWriter: httptest.NewRecorder()}
	if rec.Code() != http.StatusOK {
		t.Fatalf("code = %d", rec.Code())
	}
	rec.WriteHeader(http.StatusNotFound)
	rec.WriteHeader(http.StatusOK)
	if rec.Code() != http.StatusNotFound {
		t.Fatalf("first status must win, got %d", rec.Code())
	}
}
