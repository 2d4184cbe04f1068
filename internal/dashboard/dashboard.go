// Package dashboard keeps a bounded history of sync cycles and serves it as JSON.
package dashboard

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nadmax/tracksync/internal/httputil"
)

type Outcome string

const (
	OutcomeSucceeded     Outcome = "succeeded"
	OutcomeFetchFailed   Outcome = "fetch_failed"
	OutcomeMalformed     Outcome = "malformed"
	OutcomeDBFailed      Outcome = "db_failed"
	OutcomeLockFailed    Outcome = "lock_failed"
	OutcomeSkippedLocked Outcome = "skipped_locked"
)

func (o Outcome) Failed() bool {
	switch o {
	case OutcomeFetchFailed, OutcomeMalformed, OutcomeDBFailed, OutcomeLockFailed:
		return true
	default:
		return false
	}
}

type CycleResult struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Outcome   Outcome       `json:"outcome"`
	Fetched   int           `json:"fetched"`
	Skipped   int           `json:"skipped"`
	Inserted  int           `json:"inserted"`
	Error     string        `json:"error,omitempty"`
}

type Stats struct {
	TotalCycles   int             `json:"total_cycles"`
	ByOutcome     map[Outcome]int `json:"by_outcome"`
	RowsInserted  int             `json:"rows_inserted"`
	LastCycle     *CycleResult    `json:"last_cycle,omitempty"`
	LastSuccessAt *time.Time      `json:"last_success_at,omitempty"`
	LastUpdated   time.Time       `json:"last_updated"`
}

const DefaultCapacity = 100

type Dashboard struct {
	mu          sync.RWMutex
	capacity    int
	results     []CycleResult
	total       int
	byOutcome   map[Outcome]int
	inserted    int
	lastSuccess *time.Time
}

func NewDashboard(capacity int) *Dashboard {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Dashboard{
		capacity:  capacity,
		results:   make([]CycleResult, 0, capacity),
		byOutcome: make(map[Outcome]int),
	}
}

func (d *Dashboard) Record(r CycleResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.results) == d.capacity {
		copy(d.results, d.results[1:])
		d.results = d.results[:len(d.results)-1]
	}
	d.results = append(d.results, r)

	d.total++
	d.byOutcome[r.Outcome]++
	d.inserted += r.Inserted
	if r.Outcome == OutcomeSucceeded {
		finished := r.StartedAt.Add(r.Duration)
		d.lastSuccess = &finished
	}
}

func (d *Dashboard) Latest() (CycleResult, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.results) == 0 {
		return CycleResult{}, false
	}
	return d.results[len(d.results)-1], true
}

// Recent returns up to limit results, newest first.
func (d *Dashboard) Recent(limit int) []CycleResult {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if limit <= 0 || limit > len(d.results) {
		limit = len(d.results)
	}

	out := make([]CycleResult, 0, limit)
	for i := len(d.results) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, d.results[i])
	}
	return out
}

func (d *Dashboard) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := Stats{
		TotalCycles:  d.total,
		ByOutcome:    make(map[Outcome]int, len(d.byOutcome)),
		RowsInserted: d.inserted,
		LastUpdated:  time.Now(),
	}
	for k, v := range d.byOutcome {
		stats.ByOutcome[k] = v
	}
	if len(d.results) > 0 {
		last := d.results[len(d.results)-1]
		stats.LastCycle = &last
	}
	if d.lastSuccess != nil {
		at := *d.lastSuccess
		stats.LastSuccessAt = &at
	}

	return stats
}

func (d *Dashboard) GetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, d.Stats())
}

func (d *Dashboard) GetRecentCycles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.WriteJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	httputil.WriteJSON(w, http.StatusOK, d.Recent(limit))
}
