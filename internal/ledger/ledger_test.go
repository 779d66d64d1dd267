package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"email_forwarder/internal/config"
	"email_forwarder/internal/extraction"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const riversideSheet = "https://docs.google.com/spreadsheets/d/riverside/edit#gid=0"

var fixedNow = time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func newTestWriter(store Store) *Writer {
	w := NewWriter(store)
	w.now = func() time.Time { return fixedNow }
	return w
}

func windowsItem() extraction.EmailItem {
	return extraction.EmailItem{
		ItemDescription: "Fit windows",
		PlotNo:          intPtr(12),
		Quantity:        dec("3"),
		Rate:            dec("120"),
		ItemType:        "Windows",
		UnitTime:        strPtr("day"),
	}
}

func TestBuildRow(t *testing.T) {
	row := BuildRow(8, fixedNow, windowsItem())
	assert.Equal(t, []string{"8", "06/02/2025", "12", "Fit windows", "3", "120.00", "360.00", "Windows"}, row.Values())

	timed := windowsItem()
	timed.NoOfDaysOrHours = dec("2")
	row = BuildRow(1, fixedNow, timed)
	assert.True(t, row.Total.Equal(decimal.NewFromInt(720)))
	assert.Equal(t, "3 x 2 days", row.QuantityDisplay())

	missing := windowsItem()
	missing.Rate = nil
	missing.PlotNo = nil
	row = BuildRow(1, fixedNow, missing)
	assert.Nil(t, row.Total)
	assert.Equal(t, "", row.Values()[ColPlot-1])
	assert.Equal(t, "", row.Values()[ColTotal-1])
}

func TestBuildRowExactDecimals(t *testing.T) {
	item := extraction.EmailItem{Quantity: dec("3"), Rate: dec("0.1")}
	row := BuildRow(1, fixedNow, item)
	assert.Equal(t, "0.3", row.Total.String())
}

func TestNextRef(t *testing.T) {
	tests := []struct {
		name string
		refs []string
		want int
	}{
		{"empty", nil, 1},
		{"header only", []string{"Ref"}, 1},
		{"numeric", []string{"Ref", "1", "7"}, 8},
		{"padded", []string{"Ref", " 41 "}, 42},
		{"non numeric last", []string{"Ref", "7", "n/a"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextRef(tt.refs))
		})
	}
}

func TestWriteItemsAppendsWithNextRef(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(riversideSheet, [][]string{
		{"Ref", "Date", "Plot", "Description", "Qty", "Rate", "Total", "Type"},
		{"7", "05/30/2025", "3", "Doors", "1", "80.00", "80.00", "Carpentry"},
	})
	project := config.Project{Name: "Riverside", GoogleSheetURL: riversideSheet}

	written, err := newTestWriter(store).WriteItems(context.Background(), project, []extraction.EmailItem{windowsItem()})
	require.NoError(t, err)
	require.Len(t, written, 1)
	assert.Equal(t, 8, written[0].Row.Ref)
	assert.Equal(t, 3, written[0].Index)

	rows := store.Rows(riversideSheet)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"8", "06/02/2025", "12", "Fit windows", "3", "120.00", "360.00", "Windows"}, rows[2])
}

func TestWriteItemsIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	project := config.Project{Name: "Riverside", GoogleSheetURL: riversideSheet}
	w := newTestWriter(store)

	first, err := w.WriteItems(context.Background(), project, []extraction.EmailItem{windowsItem()})
	require.NoError(t, err)
	require.Len(t, first, 1)

	// a linked row still counts as the same item
	errs := NewLinker(store).Link(context.Background(), first, "https://drive.example/folder")
	require.Empty(t, errs)

	second, err := w.WriteItems(context.Background(), project, []extraction.EmailItem{windowsItem()})
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Len(t, store.Rows(riversideSheet), 1)
}

func TestWriteItemsMatchesNumberCells(t *testing.T) {
	store := NewMemoryStore()
	// money columns read back from number cells lose their trailing zeros
	store.Seed(riversideSheet, [][]string{
		{"Ref", "Date", "Plot", "Description", "Qty", "Rate", "Total", "Type"},
		{"8", "06/02/2025", "12", "Fit windows (see attachments)", "3", "120", "360", "Windows"},
	})
	project := config.Project{Name: "Riverside", GoogleSheetURL: riversideSheet}

	written, err := newTestWriter(store).WriteItems(context.Background(), project, []extraction.EmailItem{windowsItem()})
	require.NoError(t, err)
	assert.Empty(t, written)
	assert.Len(t, store.Rows(riversideSheet), 2)
}

func TestSameCell(t *testing.T) {
	assert.True(t, sameCell("120.00", "120"))
	assert.True(t, sameCell("Fit windows", "Fit windows"))
	assert.False(t, sameCell("120.50", "120"))
	assert.False(t, sameCell("3 x 2 days", "3"))
}

func TestWriteItemsPerTradeSheets(t *testing.T) {
	store := NewMemoryStore()
	project := config.Project{
		Name:           "Riverside",
		GoogleSheetURL: riversideSheet,
		SheetURLs:      map[string]string{"Carpentry": "carpentry-sheet"},
	}
	carpentry := windowsItem()
	carpentry.ItemType = "carpentry"

	written, err := newTestWriter(store).WriteItems(context.Background(), project, []extraction.EmailItem{windowsItem(), carpentry})
	require.NoError(t, err)
	require.Len(t, written, 2)
	assert.Equal(t, riversideSheet, written[0].Sheet)
	assert.Equal(t, "carpentry-sheet", written[1].Sheet)
	assert.Equal(t, 1, written[1].Row.Ref)
}

func TestWriteItemsWithoutSheet(t *testing.T) {
	store := NewMemoryStore()
	_, err := newTestWriter(store).WriteItems(context.Background(), config.Project{Name: "Misc"}, []extraction.EmailItem{windowsItem()})

	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

type failingStore struct {
	*MemoryStore
	err error
}

func (f failingStore) InsertRow(ctx context.Context, sheet string, values []string, index int) error {
	return f.err
}

func TestWriteItemsInsertFailure(t *testing.T) {
	denied := errors.New("denied")
	store := failingStore{MemoryStore: NewMemoryStore(), err: denied}
	project := config.Project{Name: "Riverside", GoogleSheetURL: riversideSheet}

	_, err := newTestWriter(store).WriteItems(context.Background(), project, []extraction.EmailItem{windowsItem()})
	assert.ErrorIs(t, err, denied)
}

func TestLink(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(riversideSheet, [][]string{
		{"Ref"},
		{"8", "06/02/2025", "12", "Fit windows", "3", "120.00", "360.00", "Windows"},
	})
	rows := []WrittenRow{
		{Sheet: riversideSheet, Row: BuildRow(8, fixedNow, windowsItem())},
		{Sheet: riversideSheet, Row: BuildRow(9, fixedNow, windowsItem())},
	}

	errs := NewLinker(store).Link(context.Background(), rows, "https://drive.example/f/1")
	require.Len(t, errs, 1)
	var notFound *ItemNotFoundError
	require.ErrorAs(t, errs[0], &notFound)
	assert.Equal(t, 9, notFound.Ref)

	linked := store.Rows(riversideSheet)[1]
	require.Len(t, linked, ColLink)
	assert.Equal(t, "Fit windows (see attachments)", linked[ColDescription-1])
	assert.Equal(t, "https://drive.example/f/1", linked[ColLink-1])
}
