package repository

import (
	"context"
	"sync"

	"github.com/nadmax/tracksync/internal/task"
)

type MockSnapshotRepository struct {
	mu               sync.Mutex
	EnsureTableCalls int
	InsertRowsCalls  [][]task.Row
	Rows             []task.Row
	EnsureTableError error
	InsertRowsError  error
	Closed           bool
}

func NewMockSnapshotRepository() *MockSnapshotRepository {
	return &MockSnapshotRepository{
		InsertRowsCalls: make([][]task.Row, 0),
		Rows:            make([]task.Row, 0),
	}
}

func (m *MockSnapshotRepository) EnsureTable(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.EnsureTableCalls++
	return m.EnsureTableError
}

func (m *MockSnapshotRepository) InsertRows(ctx context.Context, rows []task.Row) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InsertRowsCalls = append(m.InsertRowsCalls, rows)
	if m.InsertRowsError != nil {
		return 0, m.InsertRowsError
	}

	m.Rows = append(m.Rows, rows...)
	return len(rows), nil
}

func (m *MockSnapshotRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Closed = true
	return nil
}

func (m *MockSnapshotRepository) SetInsertRowsError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InsertRowsError = err
}

func (m *MockSnapshotRepository) SetEnsureTableError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.EnsureTableError = err
}

func (m *MockSnapshotRepository) GetRows() []task.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]task.Row, len(m.Rows))
	copy(out, m.Rows)
	return out
}

func (m *MockSnapshotRepository) GetInsertRowsCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.InsertRowsCalls)
}

func (m *MockSnapshotRepository) GetEnsureTableCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.EnsureTableCalls
}
