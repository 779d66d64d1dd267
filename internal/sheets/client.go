// Package sheets is the Google Sheets ledger store. Sheets are addressed by
// their browser URL; the gid fragment selects the tab, defaulting to the first.
package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"email_forwarder/internal/config"
	"email_forwarder/internal/gauth"
	"email_forwarder/internal/retry"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

type Client struct {
	service *sheets.Service
	tabs    sync.Map // sheet URL -> tab
	read    retry.Config
	write   retry.Config
}

type tab struct {
	spreadsheetID string
	sheetID       int64
	title         string
}

func NewClient(ctx context.Context, credentialsFile string, resilience config.ResilienceConfig) (*Client, error) {
	return NewClientWithOptions(ctx, resilience, gauth.ClientOptions(credentialsFile)...)
}

// NewClientWithOptions builds a client from explicit API options, e.g. a test
// endpoint.
func NewClientWithOptions(ctx context.Context, resilience config.ResilienceConfig, opts ...option.ClientOption) (*Client, error) {
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Client{
		service: service,
		read:    resilience.SheetRead,
		write:   resilience.SheetWrite,
	}, nil
}

func (c *Client) resolve(ctx context.Context, sheetURL string) (tab, error) {
	if cached, ok := c.tabs.Load(sheetURL); ok {
		return cached.(tab), nil
	}

	ref, err := ParseSheetURL(sheetURL)
	if err != nil {
		return tab{}, &config.ConfigurationError{Field: "projects", Reason: err.Error()}
	}

	spreadsheet, err := retry.WithRetry(ctx, c.read, func(ctx context.Context) (*sheets.Spreadsheet, error) {
		resp, err := c.service.Spreadsheets.Get(ref.SpreadsheetID).Fields("sheets.properties").Context(ctx).Do()
		return resp, gauth.Classify(sheetURL, err)
	})
	if err != nil {
		return tab{}, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	if len(spreadsheet.Sheets) == 0 {
		return tab{}, fmt.Errorf("spreadsheet %s has no sheets", ref.SpreadsheetID)
	}

	props := spreadsheet.Sheets[0].Properties
	if ref.HasGID {
		found := false
		for _, s := range spreadsheet.Sheets {
			if s.Properties != nil && s.Properties.SheetId == ref.GID {
				props, found = s.Properties, true
				break
			}
		}
		if !found {
			return tab{}, fmt.Errorf("spreadsheet %s has no sheet with gid %d", ref.SpreadsheetID, ref.GID)
		}
	}

	t := tab{spreadsheetID: ref.SpreadsheetID, sheetID: props.SheetId, title: props.Title}
	c.tabs.Store(sheetURL, t)
	log.Debug().Str("spreadsheet", t.spreadsheetID).Str("tab", t.title).Msg("Resolved ledger sheet")
	return t, nil
}

func (c *Client) readRange(ctx context.Context, sheetURL, a1 string) ([][]interface{}, error) {
	t, err := c.resolve(ctx, sheetURL)
	if err != nil {
		return nil, err
	}
	resp, err := retry.WithRetry(ctx, c.read, func(ctx context.Context) (*sheets.ValueRange, error) {
		resp, err := c.service.Spreadsheets.Values.Get(t.spreadsheetID, qualify(t.title, a1)).
			ValueRenderOption("UNFORMATTED_VALUE").
			Context(ctx).
			Do()
		return resp, gauth.Classify(sheetURL, err)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	return resp.Values, nil
}

// ReadColumn returns the column's values down to its last non-empty cell.
func (c *Client) ReadColumn(ctx context.Context, sheetURL string, col int) ([]string, error) {
	letter := ColumnLetter(col)
	values, err := c.readRange(ctx, sheetURL, letter+":"+letter)
	if err != nil {
		return nil, err
	}
	column := make([]string, len(values))
	for i, row := range values {
		if len(row) > 0 {
			column[i] = cellString(row[0])
		}
	}
	return column, nil
}

func (c *Client) ReadAllRows(ctx context.Context, sheetURL string) ([][]string, error) {
	values, err := c.readRange(ctx, sheetURL, "")
	if err != nil {
		return nil, err
	}
	rows := make([][]string, len(values))
	for i, row := range values {
		rows[i] = make([]string, len(row))
		for j, cell := range row {
			rows[i][j] = cellString(cell)
		}
	}
	return rows, nil
}

// InsertRow inserts an empty row at index, shifting the rows below it down,
// and writes values into it. Plain decimal numbers are stored as number cells
// so sheet formulas can total them; everything else is stored as text.
func (c *Client) InsertRow(ctx context.Context, sheetURL string, values []string, index int) error {
	t, err := c.resolve(ctx, sheetURL)
	if err != nil {
		return err
	}

	insert := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			InsertDimension: &sheets.InsertDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    t.sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(index - 1),
					EndIndex:   int64(index),
				},
				InheritFromBefore: index > 1,
			},
		}},
	}
	err = retry.Do(ctx, c.write, func(ctx context.Context) error {
		_, err := c.service.Spreadsheets.BatchUpdate(t.spreadsheetID, insert).Context(ctx).Do()
		return gauth.Classify(sheetURL, err)
	})
	if err != nil {
		return fmt.Errorf("failed to insert row: %w", err)
	}

	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = cellValue(v)
	}
	return c.update(ctx, sheetURL, t, fmt.Sprintf("A%d", index), [][]interface{}{row})
}

func (c *Client) UpdateCell(ctx context.Context, sheetURL string, row, col int, value string) error {
	t, err := c.resolve(ctx, sheetURL)
	if err != nil {
		return err
	}
	return c.update(ctx, sheetURL, t, fmt.Sprintf("%s%d", ColumnLetter(col), row), [][]interface{}{{cellValue(value)}})
}

func (c *Client) update(ctx context.Context, sheetURL string, t tab, a1 string, values [][]interface{}) error {
	err := retry.Do(ctx, c.write, func(ctx context.Context) error {
		_, err := c.service.Spreadsheets.Values.Update(t.spreadsheetID, qualify(t.title, a1), &sheets.ValueRange{Values: values}).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return gauth.Classify(sheetURL, err)
	})
	if err != nil {
		return fmt.Errorf("failed to update range %s: %w", a1, err)
	}
	return nil
}

var numberPattern = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)

// cellValue turns a plain decimal string into a JSON number. Values are sent
// RAW, so text is never parsed as a date or formula.
func cellValue(s string) interface{} {
	if numberPattern.MatchString(s) {
		return json.Number(s)
	}
	return s
}

// cellString renders an unformatted cell value.
func cellString(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
