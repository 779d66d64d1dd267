// Package ledger appends extracted line items to a project's accounting sheet
// and links the archived email back into the written rows.
package ledger

import (
	"strconv"
	"time"

	"email_forwarder/internal/extraction"

	"github.com/shopspring/decimal"
)

// Sheet columns, 1-based.
const (
	ColRef = iota + 1
	ColDate
	ColPlot
	ColDescription
	ColQuantity
	ColRate
	ColTotal
	ColItemType
	ColLink
)

const (
	dateLayout = "01/02/2006"
	// AttachmentsNote is appended to the description of a linked row.
	AttachmentsNote = " (see attachments)"
)

// Row is one ledger line. Build it with BuildRow; its fields are never changed
// afterwards.
type Row struct {
	Ref         int
	DateAdded   time.Time
	PlotNo      *int
	Description string
	Quantity    *decimal.Decimal
	DaysOrHours *decimal.Decimal
	UnitTime    *string
	Rate        *decimal.Decimal
	Total       *decimal.Decimal
	ItemType    string
}

// BuildRow computes the ledger line for item. Total is rate × quantity ×
// days-or-hours (1 when absent) and is left empty when rate or quantity is
// missing.
func BuildRow(ref int, dateAdded time.Time, item extraction.EmailItem) Row {
	row := Row{
		Ref:         ref,
		DateAdded:   dateAdded,
		PlotNo:      item.PlotNo,
		Description: item.ItemDescription,
		Quantity:    item.Quantity,
		DaysOrHours: item.NoOfDaysOrHours,
		UnitTime:    item.UnitTime,
		Rate:        item.Rate,
		ItemType:    item.ItemType,
	}
	if item.Rate != nil && item.Quantity != nil {
		multiplier := decimal.NewFromInt(1)
		if item.NoOfDaysOrHours != nil {
			multiplier = *item.NoOfDaysOrHours
		}
		total := item.Rate.Mul(*item.Quantity).Mul(multiplier)
		row.Total = &total
	}
	return row
}

// Values renders the row as the strings written to the sheet, reference
// column first.
func (r Row) Values() []string {
	return []string{
		strconv.Itoa(r.Ref),
		r.DateAdded.Format(dateLayout),
		optionalInt(r.PlotNo),
		r.Description,
		r.QuantityDisplay(),
		money(r.Rate),
		money(r.Total),
		r.ItemType,
	}
}

// QuantityDisplay shows the quantity, followed by the days or hours when the
// item is charged by time: "3", "3 x 2 days", "1 x 1 hour".
func (r Row) QuantityDisplay() string {
	if r.Quantity == nil {
		return ""
	}
	display := r.Quantity.String()
	if r.DaysOrHours == nil {
		return display
	}
	display += " x " + r.DaysOrHours.String()
	if r.UnitTime != nil && *r.UnitTime != "" {
		display += " " + *r.UnitTime
		if !r.DaysOrHours.Equal(decimal.NewFromInt(1)) {
			display += "s"
		}
	}
	return display
}

func optionalInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func money(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}
