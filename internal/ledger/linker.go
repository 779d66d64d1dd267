package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// ItemNotFoundError means a written row could no longer be found by its
// reference.
type ItemNotFoundError struct {
	Sheet string
	Ref   int
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item ref %d not found in %s", e.Ref, e.Sheet)
}

type Linker struct {
	store Store
}

func NewLinker(store Store) *Linker {
	return &Linker{store: store}
}

// Link marks every row as having attachments and writes link into its link
// column. Rows are handled independently; the returned slice holds one error
// per row that could not be linked.
func (l *Linker) Link(ctx context.Context, rows []WrittenRow, link string) []error {
	var errs []error
	for _, r := range rows {
		if err := l.linkRow(ctx, r, link); err != nil {
			log.Warn().Err(err).Int("item_ref", r.Row.Ref).Msg("Failed to link ledger row")
			errs = append(errs, err)
		}
	}
	return errs
}

func (l *Linker) linkRow(ctx context.Context, r WrittenRow, link string) error {
	refs, err := l.store.ReadColumn(ctx, r.Sheet, ColRef)
	if err != nil {
		return fmt.Errorf("failed to read reference column: %w", err)
	}

	index := FindRef(refs, r.Row.Ref)
	if index == 0 {
		return &ItemNotFoundError{Sheet: r.Sheet, Ref: r.Row.Ref}
	}

	if err := l.store.UpdateCell(ctx, r.Sheet, index, ColDescription, r.Row.Description+AttachmentsNote); err != nil {
		return fmt.Errorf("failed to annotate row %d: %w", index, err)
	}
	if err := l.store.UpdateCell(ctx, r.Sheet, index, ColLink, link); err != nil {
		return fmt.Errorf("failed to write link to row %d: %w", index, err)
	}
	log.Debug().Int("item_ref", r.Row.Ref).Int("row", index).Msg("Linked ledger row")
	return nil
}

// FindRef returns the 1-based row holding ref, or 0.
func FindRef(refs []string, ref int) int {
	want := strconv.Itoa(ref)
	for i, v := range refs {
		if strings.TrimSpace(v) == want {
			return i + 1
		}
	}
	return 0
}
