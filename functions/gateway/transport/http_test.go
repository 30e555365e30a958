package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendServerRes(t *testing.T) {
	tests := []struct {
		name   string
		body   []byte
		status int
		err    error
	}{
		{"success", []byte(`{"ok":true}`), http.StatusOK, nil},
		{"error hides internal message", []byte(`{"success":false,"error":"boom"}`), http.StatusInternalServerError, errors.New("db password leaked")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			SendServerRes(rr, tt.body, tt.status, tt.err)

			if rr.Code != tt.status {
				t.Errorf("wrong status code: got %v want %v", rr.Code, tt.status)
			}
			if rr.Body.String() != string(tt.body) {
				t.Errorf("unexpected body: got %v want %v", rr.Body.String(), string(tt.body))
			}
			if strings.Contains(rr.Body.String(), "leaked") {
				t.Errorf("internal error must not reach the client")
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("wrong content type: got %v", ct)
			}
		})
	}
}

func TestSendJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	SendJSON(rr, map[string]any{"status": "ready"}, http.StatusOK)

	var got map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got["status"] != "ready" {
		t.Errorf("unexpected body %v", got)
	}

	rr = httptest.NewRecorder()
	SendJSON(rr, map[string]any{"bad": make(chan int)}, http.StatusOK)
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for an unencodable value, got %d", rr.Code)
	}
}

func TestSendJSONError(t *testing.T) {
	rr := httptest.NewRecorder()
	SendJSONError(rr, "event sync is disabled", http.StatusServiceUnavailable, errors.New("feature disabled"))

	var got ErrorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.Success || got.Error != "event sync is disabled" || rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unexpected response %d %+v", rr.Code, got)
	}
}
