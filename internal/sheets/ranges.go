package sheets

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)

// SheetRef identifies a tab within a spreadsheet.
type SheetRef struct {
	SpreadsheetID string
	GID           int64
	HasGID        bool
}

// ParseSheetURL extracts the spreadsheet ID and the optional gid from a
// browser URL such as
// https://docs.google.com/spreadsheets/d/<id>/edit#gid=638267015.
func ParseSheetURL(sheetURL string) (SheetRef, error) {
	m := spreadsheetIDPattern.FindStringSubmatch(sheetURL)
	if m == nil {
		return SheetRef{}, fmt.Errorf("not a spreadsheet URL: %q", sheetURL)
	}
	ref := SheetRef{SpreadsheetID: m[1]}

	u, err := url.Parse(sheetURL)
	if err != nil {
		return ref, nil
	}
	gid := u.Query().Get("gid")
	if gid == "" {
		if values, err := url.ParseQuery(u.Fragment); err == nil {
			gid = values.Get("gid")
		}
	}
	if gid != "" {
		n, err := strconv.ParseInt(gid, 10, 64)
		if err != nil {
			return SheetRef{}, fmt.Errorf("invalid gid %q in %q", gid, sheetURL)
		}
		ref.GID, ref.HasGID = n, true
	}
	return ref, nil
}

// ColumnLetter converts a 1-based column index to A1 notation: 1 is A, 27 is AA.
func ColumnLetter(col int) string {
	var letters []byte
	for col > 0 {
		col--
		letters = append([]byte{byte('A' + col%26)}, letters...)
		col /= 26
	}
	return string(letters)
}

// qualify prefixes an A1 range with the quoted tab title. An empty range
// addresses the whole tab.
func qualify(title, a1 string) string {
	quoted := "'" + strings.ReplaceAll(title, "'", "''") + "'"
	if a1 == "" {
		return quoted
	}
	return quoted + "!" + a1
}
