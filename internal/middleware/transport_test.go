package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func setupAPIRecorder() (*[]string, func()) {
	var statuses []string
	original := recordAPIRequest
	recordAPIRequest = func(status string, duration time.Duration) {
		statuses = append(statuses, status)
	}
	return &statuses, func() { recordAPIRequest = original }
}

func TestInstrumentTransport_RecordsStatus(t *testing.T) {
	statuses, cleanup := setupAPIRecorder()
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &http.Client{Transport: InstrumentTransport(nil)}

	for _, path := range []string{"/ok", "/missing"} {
		resp, err := client.Get(server.URL + path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_ = resp.Body.Close()
	}

	if len(*statuses) != 2 {
		t.Fatalf("expected 2 recorded requests, got %d", len(*statuses))
	}
	if (*statuses)[0] != "200" || (*statuses)[1] != "404" {
		t.Errorf("unexpected statuses: %v", *statuses)
	}
}

func TestInstrumentTransport_RecordsTransportError(t *testing.T) {
	statuses, cleanup := setupAPIRecorder()
	defer cleanup()

	failing := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.invalid/tasks", nil)
	_, err := InstrumentTransport(failing).RoundTrip(req)
	if err == nil {
		t.Fatal("expected transport error")
	}

	if len(*statuses) != 1 || (*statuses)[0] != "error" {
		t.Errorf("expected a single error status, got %v", *statuses)
	}
}
