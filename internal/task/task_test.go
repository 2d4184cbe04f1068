package task

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raws(records ...string) []RawTask {
	out := make([]RawTask, 0, len(records))
	for _, r := range records {
		out = append(out, RawTask(r))
	}
	return out
}

func TestNormalize_Scenario(t *testing.T) {
	now := time.Date(2024, 3, 1, 17, 42, 5, 0, time.UTC)
	input := raws(
		`{"project": null, "project_accumulated_time": 10, "user": {"name": "Ann"}, "name": "Triage", "accumulated_time": 5}`,
		`{"project": "Alpha", "project_accumulated_time": 120, "user": {"name": "Bob"}, "name": "Write spec", "accumulated_time": 45}`,
	)

	rows, skipped, err := Normalize(input, now)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, skipped)

	assert.Equal(t, Row{
		CreationDate:           time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Project:                "Alpha",
		AccumulatedTimeSeconds: 120,
		Username:               "Bob",
		Task:                   "Write spec",
		TaskTimeSeconds:        45,
	}, rows[0])
	assert.Equal(t, "2024-03-01", rows[0].DateString())
}

func TestNormalize_DropsRecordsWithoutProject(t *testing.T) {
	input := raws(
		`{"project": null, "name": "a"}`,
		`{"name": "b", "accumulated_time": 3}`,
		`{"project": null}`,
	)

	rows, skipped, err := Normalize(input, time.Now())
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 3, skipped)
}

func TestNormalize_CreationDateIgnoresRecordDates(t *testing.T) {
	now := time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC)
	input := raws(
		`{"project": "P", "project_accumulated_time": 1, "user": {"name": "U"}, "name": "T", "accumulated_time": 1, "date": "2019-01-01", "created_at": "2019-01-01T00:00:00Z"}`,
		`{"project": "Q", "project_accumulated_time": 2, "user": {"name": "V"}, "name": "S", "accumulated_time": 2}`,
	)

	rows, _, err := Normalize(input, now)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, "2025-12-31", r.DateString())
	}
}

func TestNormalize_Empty(t *testing.T) {
	rows, skipped, err := Normalize(nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, skipped)
}

func TestNormalize_Coercion(t *testing.T) {
	tests := []struct {
		name         string
		record       string
		projectTime  int64
		taskTime     int64
		expectedProj string
	}{
		{
			name:         "integral floats",
			record:       `{"project": "P", "project_accumulated_time": 120.0, "user": {"name": "U"}, "name": "T", "accumulated_time": 45.0}`,
			projectTime:  120,
			taskTime:     45,
			expectedProj: "P",
		},
		{
			name:         "numeric strings",
			record:       `{"project": "P", "project_accumulated_time": "7200", "user": {"name": "U"}, "name": "T", "accumulated_time": "60"}`,
			projectTime:  7200,
			taskTime:     60,
			expectedProj: "P",
		},
		{
			name:         "largest integer column value",
			record:       `{"project": "P", "project_accumulated_time": 2147483647, "user": {"name": "U"}, "name": "T", "accumulated_time": 2147483647.0}`,
			projectTime:  2147483647,
			taskTime:     2147483647,
			expectedProj: "P",
		},
		{
			name:         "numeric project id",
			record:       `{"project": 4411, "project_accumulated_time": 0, "user": {"name": "U"}, "name": "T", "accumulated_time": 0}`,
			projectTime:  0,
			taskTime:     0,
			expectedProj: "4411",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, _, err := Normalize(raws(tt.record), time.Now())
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, tt.expectedProj, rows[0].Project)
			assert.Equal(t, tt.projectTime, rows[0].AccumulatedTimeSeconds)
			assert.Equal(t, tt.taskTime, rows[0].TaskTimeSeconds)
		})
	}
}

func TestNormalize_MalformedRecords(t *testing.T) {
	tests := []struct {
		name   string
		record string
		field  string
	}{
		{
			name:   "missing accumulated_time",
			record: `{"project": "P", "project_accumulated_time": 1, "user": {"name": "U"}, "name": "T"}`,
			field:  "accumulated_time",
		},
		{
			name:   "missing project_accumulated_time",
			record: `{"project": "P", "user": {"name": "U"}, "name": "T", "accumulated_time": 1}`,
			field:  "project_accumulated_time",
		},
		{
			name:   "missing name",
			record: `{"project": "P", "project_accumulated_time": 1, "user": {"name": "U"}, "accumulated_time": 1}`,
			field:  "name",
		},
		{
			name:   "missing user",
			record: `{"project": "P", "project_accumulated_time": 1, "name": "T", "accumulated_time": 1}`,
			field:  "user.name",
		},
		{
			name:   "null user name",
			record: `{"project": "P", "project_accumulated_time": 1, "user": {"name": null}, "name": "T", "accumulated_time": 1}`,
			field:  "user.name",
		},
		{
			name:   "fractional time",
			record: `{"project": "P", "project_accumulated_time": 1, "user": {"name": "U"}, "name": "T", "accumulated_time": 1.5}`,
			field:  "accumulated_time",
		},
		{
			name:   "negative time",
			record: `{"project": "P", "project_accumulated_time": -3, "user": {"name": "U"}, "name": "T", "accumulated_time": 1}`,
			field:  "project_accumulated_time",
		},
		{
			name:   "non-numeric time",
			record: `{"project": "P", "project_accumulated_time": 1, "user": {"name": "U"}, "name": "T", "accumulated_time": "soon"}`,
			field:  "accumulated_time",
		},
		{
			name:   "boolean project",
			record: `{"project": true, "project_accumulated_time": 1, "user": {"name": "U"}, "name": "T", "accumulated_time": 1}`,
			field:  "project",
		},
		{
			name:   "time beyond int64 as float",
			record: `{"project": "P", "project_accumulated_time": 9223372036854775807.0, "user": {"name": "U"}, "name": "T", "accumulated_time": 1}`,
			field:  "project_accumulated_time",
		},
		{
			name:   "time beyond int64 as string",
			record: `{"project": "P", "project_accumulated_time": "9223372036854775808", "user": {"name": "U"}, "name": "T", "accumulated_time": 1}`,
			field:  "project_accumulated_time",
		},
		{
			name:   "time beyond int64 in exponent form",
			record: `{"project": "P", "project_accumulated_time": 9.223372036854775807e18, "user": {"name": "U"}, "name": "T", "accumulated_time": 1}`,
			field:  "project_accumulated_time",
		},
		{
			name:   "time beyond integer column",
			record: `{"project": "P", "project_accumulated_time": 1, "user": {"name": "U"}, "name": "T", "accumulated_time": 2147483648}`,
			field:  "accumulated_time",
		},
		{
			name:   "task name too long",
			record: `{"project": "P", "project_accumulated_time": 1, "user": {"name": "U"}, "name": "` + strings.Repeat("x", MaxTaskLen+1) + `", "accumulated_time": 1}`,
			field:  "name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, _, err := Normalize(raws(tt.record), time.Now())
			require.Error(t, err)
			assert.Nil(t, rows)

			var malformed *MalformedRecordError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, 0, malformed.Index)
			assert.Equal(t, tt.field, malformed.Field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestNormalize_MalformedAbortsBatch(t *testing.T) {
	input := raws(
		`{"project": "P", "project_accumulated_time": 1, "user": {"name": "U"}, "name": "T", "accumulated_time": 1}`,
		`{"project": null}`,
		`{"project": "P", "project_accumulated_time": 1, "name": "T", "accumulated_time": 1}`,
	)

	rows, skipped, err := Normalize(input, time.Now())
	assert.Nil(t, rows)
	assert.Equal(t, 1, skipped)

	var malformed *MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 2, malformed.Index)
}

func TestNormalize_NotAnObject(t *testing.T) {
	_, _, err := Normalize(raws(`"just a string"`), time.Now())

	var malformed *MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	assert.Empty(t, malformed.Field)
	assert.ErrorIs(t, err, errNotAnObject)
}

func TestNormalize_SkippedRecordsAreNotValidated(t *testing.T) {
	input := raws(`{"project": null, "accumulated_time": "garbage", "user": {"name": 5}}`)

	rows, skipped, err := Normalize(input, time.Now())
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 1, skipped)
}
