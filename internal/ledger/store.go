package ledger

import (
	"context"
	"fmt"
	"sync"
)

// Store is a spreadsheet addressed by URL. Row and column indices are 1-based.
type Store interface {
	ReadColumn(ctx context.Context, sheet string, col int) ([]string, error)
	ReadAllRows(ctx context.Context, sheet string) ([][]string, error)
	InsertRow(ctx context.Context, sheet string, values []string, index int) error
	UpdateCell(ctx context.Context, sheet string, row, col int, value string) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.Mutex
	sheets map[string][][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sheets: make(map[string][][]string)}
}

// Seed replaces the contents of sheet.
func (m *MemoryStore) Seed(sheet string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[sheet] = cloneRows(rows)
}

// Rows returns a copy of the contents of sheet.
func (m *MemoryStore) Rows(sheet string) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneRows(m.sheets[sheet])
}

// ReadColumn returns the column up to its last non-empty cell, like the
// Sheets API does.
func (m *MemoryStore) ReadColumn(ctx context.Context, sheet string, col int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var values []string
	last := 0
	for i, row := range m.sheets[sheet] {
		v := ""
		if col-1 < len(row) {
			v = row[col-1]
		}
		values = append(values, v)
		if v != "" {
			last = i + 1
		}
	}
	return values[:last], nil
}

func (m *MemoryStore) ReadAllRows(ctx context.Context, sheet string) ([][]string, error) {
	return m.Rows(sheet), nil
}

func (m *MemoryStore) InsertRow(ctx context.Context, sheet string, values []string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.sheets[sheet]
	if index < 1 {
		return fmt.Errorf("invalid row index %d", index)
	}
	for len(rows) < index-1 {
		rows = append(rows, nil)
	}
	row := append([]string(nil), values...)
	rows = append(rows[:index-1], append([][]string{row}, rows[index-1:]...)...)
	m.sheets[sheet] = rows
	return nil
}

func (m *MemoryStore) UpdateCell(ctx context.Context, sheet string, row, col int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.sheets[sheet]
	if row < 1 || col < 1 {
		return fmt.Errorf("invalid cell %d,%d", row, col)
	}
	for len(rows) < row {
		rows = append(rows, nil)
	}
	for len(rows[row-1]) < col {
		rows[row-1] = append(rows[row-1], "")
	}
	rows[row-1][col-1] = value
	m.sheets[sheet] = rows
	return nil
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}
