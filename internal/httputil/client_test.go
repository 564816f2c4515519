package httputil

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMockHTTPClient_QueuedResponses(t *testing.T) {
	m := NewMockHTTPClient().
		AddResponse(http.StatusOK, `{"ok":true}`).
		AddError(errors.New("connection refused"))

	resp, err := m.Post("http://example/infer", "application/json", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != `{"ok":true}` {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}

	if _, err := m.Post("http://example/infer", "application/json", nil); err == nil {
		t.Error("second request should return the queued error")
	}

	if len(m.Requests) != 2 {
		t.Errorf("recorded %d requests, want 2", len(m.Requests))
	}
	if ct := m.Requests[0].Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestMockHTTPClient_ExhaustedQueueReturnsOK(t *testing.T) {
	m := NewMockHTTPClient()
	resp, err := m.Do(httptest.NewRequest(http.MethodGet, "http://example/", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestWriteJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "bad frame")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "bad frame") {
		t.Errorf("body = %q", rec.Body.String())
	}
}
