// Package trackingtime fetches task records from the TrackingTime REST API.
package trackingtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/nadmax/tracksync/internal/middleware"
	"github.com/nadmax/tracksync/internal/task"
	"golang.org/x/time/rate"
)

const DefaultTasksURL = "https://app.trackingtime.co/api/v4/tasks"

// FetchError reports a failed or unusable call to the tasks endpoint.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch tasks from %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("failed to fetch tasks from %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Client struct {
	url      string
	login    string
	password string
	client   *http.Client
	limiter  *rate.Limiter
}

type Option func(*Client)

// WithTimeout bounds each request. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMinInterval lets at most one request through per d.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.client.Transport = middleware.InstrumentTransport(rt)
	}
}

func NewClient(url, login, password string, opts ...Option) *Client {
	c := &Client{
		url:      url,
		login:    login,
		password: password,
		client: &http.Client{
			Transport: middleware.InstrumentTransport(nil),
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type envelope struct {
	Response *struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"response"`
	Data *[]json.RawMessage `json:"data"`
}

// FetchTasks performs a single authenticated GET and returns the elements of
// the response's "data" array undecoded.
func (c *Client) FetchTasks(ctx context.Context) ([]task.RawTask, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{URL: c.url, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &FetchError{URL: c.url, Err: err}
	}
	req.SetBasicAuth(c.login, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: c.url, Err: err}
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{
			URL:        c.url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(snippet))),
		}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &FetchError{URL: c.url, StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid JSON body: %w", err)}
	}

	// The API reports some failures inside a 200 envelope.
	if env.Response != nil && env.Response.Status >= 400 {
		return nil, &FetchError{
			URL:        c.url,
			StatusCode: env.Response.Status,
			Err:        fmt.Errorf("api error: %s", env.Response.Message),
		}
	}

	if env.Data == nil {
		return nil, &FetchError{URL: c.url, StatusCode: resp.StatusCode, Err: errors.New("response has no data array")}
	}

	tasks := make([]task.RawTask, 0, len(*env.Data))
	for _, item := range *env.Data {
		tasks = append(tasks, task.RawTask(item))
	}

	return tasks, nil
}
