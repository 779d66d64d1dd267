package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"email_forwarder/internal/config"
	"email_forwarder/internal/extraction"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// WrittenRow records where a row ended up.
type WrittenRow struct {
	Sheet string
	Index int
	Row   Row
}

type Writer struct {
	store Store
	now   func() time.Time
}

func NewWriter(store Store) *Writer {
	return &Writer{store: store, now: time.Now}
}

// WriteItems appends every item to its sheet in the project's ledger and
// returns the rows that were actually inserted. Items already present are
// skipped. Sheets are resolved for all items before anything is written, so a
// missing sheet URL leaves the ledger untouched.
func (w *Writer) WriteItems(ctx context.Context, project config.Project, items []extraction.EmailItem) ([]WrittenRow, error) {
	sheets := make([]string, len(items))
	for i, item := range items {
		sheet, err := project.SheetFor(item.ItemType)
		if err != nil {
			return nil, err
		}
		sheets[i] = sheet
	}

	var written []WrittenRow
	for i, item := range items {
		row, ok, err := w.writeItem(ctx, sheets[i], item)
		if err != nil {
			return written, fmt.Errorf("failed to write item %d to ledger for %s: %w", i+1, project.Name, err)
		}
		if !ok {
			log.Info().
				Str("project", project.Name).
				Str("description", item.ItemDescription).
				Msg("Item already in ledger, skipping")
			continue
		}
		log.Info().
			Str("project", project.Name).
			Int("item_ref", row.Row.Ref).
			Int("row", row.Index).
			Msg("Appended ledger row")
		written = append(written, row)
	}
	return written, nil
}

func (w *Writer) writeItem(ctx context.Context, sheet string, item extraction.EmailItem) (WrittenRow, bool, error) {
	refs, err := w.store.ReadColumn(ctx, sheet, ColRef)
	if err != nil {
		return WrittenRow{}, false, fmt.Errorf("failed to read reference column: %w", err)
	}

	row := BuildRow(NextRef(refs), w.now(), item)

	existing, err := w.store.ReadAllRows(ctx, sheet)
	if err != nil {
		return WrittenRow{}, false, fmt.Errorf("failed to read ledger rows: %w", err)
	}
	if IsDuplicate(existing, row) {
		return WrittenRow{}, false, nil
	}

	index := len(refs) + 1
	if err := w.store.InsertRow(ctx, sheet, row.Values(), index); err != nil {
		return WrittenRow{}, false, fmt.Errorf("failed to insert row %d: %w", index, err)
	}
	return WrittenRow{Sheet: sheet, Index: index, Row: row}, true, nil
}

// NextRef is one more than the last reference in the column, or 1 when the
// column is empty or ends in something that is not a number.
func NextRef(refs []string) int {
	if len(refs) == 0 {
		return 1
	}
	last, err := strconv.Atoi(strings.TrimSpace(refs[len(refs)-1]))
	if err != nil {
		return 1
	}
	return last + 1
}

// IsDuplicate reports whether a row equal to candidate on every column except
// the reference already exists. A description carrying the attachments note
// counts as equal to the bare description.
func IsDuplicate(existing [][]string, candidate Row) bool {
	want := candidate.Values()
	for _, row := range existing {
		if sameExceptRef(row, want) {
			return true
		}
	}
	return false
}

func sameExceptRef(row, want []string) bool {
	for col := ColDate; col <= ColItemType; col++ {
		got := ""
		if col-1 < len(row) {
			got = strings.TrimSpace(row[col-1])
		}
		if col == ColDescription {
			got = strings.TrimSuffix(got, strings.TrimSpace(AttachmentsNote))
			got = strings.TrimSpace(got)
		}
		if !sameCell(got, strings.TrimSpace(want[col-1])) {
			return false
		}
	}
	return true
}

// sameCell compares two cells, numerically when both are numbers: a total
// stored as a number cell reads back as "360" for a written "360.00".
func sameCell(a, b string) bool {
	if a == b {
		return true
	}
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)
	return errA == nil && errB == nil && da.Equal(db)
}
