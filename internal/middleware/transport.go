package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nadmax/tracksync/internal/metrics"
)

var recordAPIRequest = metrics.RecordAPIRequest

type instrumentedTransport struct {
	next http.RoundTripper
}

// InstrumentTransport records the status and latency of every request sent
// through next. A nil next means http.DefaultTransport.
func InstrumentTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &instrumentedTransport{next: next}
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	duration := time.Since(start)

	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	recordAPIRequest(status, duration)

	return resp, err
}
