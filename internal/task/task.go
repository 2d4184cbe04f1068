// Package task defines the time-accounting records pulled from the tracking API
// and the normalized rows written to the snapshot table.
package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf8"
)

const DateLayout = "2006-01-02"

// Column widths of the snapshot table.
const (
	MaxProjectLen  = 64
	MaxUsernameLen = 64
	MaxTaskLen     = 128

	// Time columns are 32-bit INTEGER.
	MaxSeconds = math.MaxInt32
)

type (
	// RawTask is one undecoded element of the API's "data" array.
	RawTask json.RawMessage

	Row struct {
		CreationDate           time.Time `json:"creation_date"`
		Project                string    `json:"project"`
		AccumulatedTimeSeconds int64     `json:"accumulated_time_s"`
		Username               string    `json:"username"`
		Task                   string    `json:"task"`
		TaskTimeSeconds        int64     `json:"task_time_s"`
	}
)

type rawFields struct {
	Project                json.RawMessage `json:"project"`
	ProjectAccumulatedTime json.RawMessage `json:"project_accumulated_time"`
	User                   *struct {
		Name json.RawMessage `json:"name"`
	} `json:"user"`
	Name            json.RawMessage `json:"name"`
	AccumulatedTime json.RawMessage `json:"accumulated_time"`
}

// MalformedRecordError reports a project-attributed record that cannot be
// turned into a Row.
type MalformedRecordError struct {
	Index int
	Field string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed task record %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("malformed task record %d: field %q: %v", e.Index, e.Field, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

var (
	errMissing     = errors.New("missing")
	errNotString   = errors.New("not a string")
	errNotInteger  = errors.New("not a non-negative integer")
	errTooLarge    = fmt.Errorf("exceeds %d seconds", MaxSeconds)
	errNotAnObject = errors.New("not a JSON object")
)

// Normalize converts raw API records into rows stamped with now's calendar
// date. Records without a project are dropped and counted in skipped. The
// first malformed record aborts the whole batch.
func Normalize(raw []RawTask, now time.Time) (rows []Row, skipped int, err error) {
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	rows = make([]Row, 0, len(raw))

	for i, rec := range raw {
		var f rawFields
		if err := json.Unmarshal(rec, &f); err != nil {
			return nil, skipped, &MalformedRecordError{Index: i, Err: fmt.Errorf("%w: %v", errNotAnObject, err)}
		}

		if isNull(f.Project) {
			skipped++
			continue
		}

		row, err := buildRow(i, f, date)
		if err != nil {
			return nil, skipped, err
		}
		rows = append(rows, row)
	}

	return rows, skipped, nil
}

func buildRow(i int, f rawFields, date time.Time) (Row, error) {
	project, err := decodeProject(f.Project)
	if err != nil {
		return Row{}, &MalformedRecordError{Index: i, Field: "project", Err: err}
	}

	projectTime, err := decodeSeconds(f.ProjectAccumulatedTime)
	if err != nil {
		return Row{}, &MalformedRecordError{Index: i, Field: "project_accumulated_time", Err: err}
	}

	var userName json.RawMessage
	if f.User != nil {
		userName = f.User.Name
	}
	username, err := decodeString(userName)
	if err != nil {
		return Row{}, &MalformedRecordError{Index: i, Field: "user.name", Err: err}
	}

	name, err := decodeString(f.Name)
	if err != nil {
		return Row{}, &MalformedRecordError{Index: i, Field: "name", Err: err}
	}

	taskTime, err := decodeSeconds(f.AccumulatedTime)
	if err != nil {
		return Row{}, &MalformedRecordError{Index: i, Field: "accumulated_time", Err: err}
	}

	for _, c := range []struct {
		field, value string
		max          int
	}{
		{"project", project, MaxProjectLen},
		{"user.name", username, MaxUsernameLen},
		{"name", name, MaxTaskLen},
	} {
		if n := utf8.RuneCountInString(c.value); n > c.max {
			return Row{}, &MalformedRecordError{
				Index: i,
				Field: c.field,
				Err:   fmt.Errorf("%d characters exceeds column width %d", n, c.max),
			}
		}
	}

	return Row{
		CreationDate:           date,
		Project:                project,
		AccumulatedTimeSeconds: projectTime,
		Username:               username,
		Task:                   name,
		TaskTimeSeconds:        taskTime,
	}, nil
}

// DateString renders the creation date the way the DATE column expects it.
func (r Row) DateString() string {
	return r.CreationDate.Format(DateLayout)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeString(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", errMissing
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errNotString
	}

	return s, nil
}

// Projects are usually names, but numeric ids are kept as their literal.
func decodeProject(raw json.RawMessage) (string, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", err
	}

	switch p := v.(type) {
	case string:
		return p, nil
	case json.Number:
		return p.String(), nil
	default:
		return "", errNotString
	}
}

func decodeSeconds(raw json.RawMessage) (int64, error) {
	if isNull(raw) {
		return 0, errMissing
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return 0, errNotInteger
	}

	var text string
	switch n := v.(type) {
	case json.Number:
		text = n.String()
	case string:
		text = n
	default:
		return 0, errNotInteger
	}

	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		if i < 0 {
			return 0, errNotInteger
		}
		if i > MaxSeconds {
			return 0, errTooLarge
		}
		return i, nil
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f < 0 || f != math.Trunc(f) {
		return 0, errNotInteger
	}
	if f > MaxSeconds {
		return 0, errTooLarge
	}

	return int64(f), nil
}
