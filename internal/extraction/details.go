// Package extraction asks the oracle for the structured facts of an email and
// reads its answer back into EmailDetails.
package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	UnitDay  = "day"
	UnitHour = "hour"
)

// EmailDetails is what the oracle extracted from one email.
type EmailDetails struct {
	Company         string      `json:"company"`
	Topic           string      `json:"topic"`
	ProjectName     string      `json:"project_name"`
	ProjectLocation string      `json:"project_location"`
	Items           []EmailItem `json:"items"`
}

type EmailItem struct {
	ItemDescription string
	PlotNo          *int
	Quantity        *decimal.Decimal
	Rate            *decimal.Decimal
	ItemType        string
	NoOfDaysOrHours *decimal.Decimal
	UnitTime        *string
}

// Plot returns the plot number of the first item, if any.
func (d *EmailDetails) Plot() *int {
	if len(d.Items) == 0 {
		return nil
	}
	return d.Items[0].PlotNo
}

// MalformedExtractionError means the oracle's answer could not be read as
// EmailDetails.
type MalformedExtractionError struct {
	Raw string
	Err error
}

func (e *MalformedExtractionError) Error() string {
	return fmt.Sprintf("malformed extraction: %v", e.Err)
}

func (e *MalformedExtractionError) Unwrap() error {
	return e.Err
}

type rawItem struct {
	ItemDescription flexString      `json:"item_description"`
	PlotNo          json.RawMessage `json:"plot_no"`
	Quantity        json.RawMessage `json:"quantity"`
	Rate            json.RawMessage `json:"rate"`
	ItemType        flexString      `json:"item_type"`
	NoOfDaysOrHours json.RawMessage `json:"no_of_days_or_hours"`
	UnitTime        flexString      `json:"unit_time"`
}

type rawDetails struct {
	Company         flexString `json:"company"`
	Topic           flexString `json:"topic"`
	ProjectName     flexString `json:"project_name"`
	ProjectLocation flexString `json:"project_location"`
	Items           []rawItem  `json:"items"`
}

// flexString accepts a JSON string, number or null.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(data)
	return nil
}

var (
	fencePattern   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	integerPattern = regexp.MustCompile(`-?\d+`)
	numberPattern  = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

// ParseDetails reads the oracle's answer. It tolerates a surrounding code fence
// and prose before or after a single JSON object.
func ParseDetails(answer string) (*EmailDetails, error) {
	body := strings.TrimSpace(answer)
	if m := fencePattern.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	first, last := strings.Index(body, "{"), strings.LastIndex(body, "}")
	if first < 0 || last < first {
		return nil, &MalformedExtractionError{Raw: answer, Err: fmt.Errorf("no JSON object in answer")}
	}

	var raw rawDetails
	if err := json.Unmarshal([]byte(body[first:last+1]), &raw); err != nil {
		return nil, &MalformedExtractionError{Raw: answer, Err: err}
	}

	details := &EmailDetails{
		Company:         strings.TrimSpace(string(raw.Company)),
		Topic:           strings.TrimSpace(string(raw.Topic)),
		ProjectName:     strings.TrimSpace(string(raw.ProjectName)),
		ProjectLocation: strings.TrimSpace(string(raw.ProjectLocation)),
	}
	for i, ri := range raw.Items {
		item, err := ri.toItem()
		if err != nil {
			return nil, &MalformedExtractionError{Raw: answer, Err: fmt.Errorf("item %d: %w", i, err)}
		}
		details.Items = append(details.Items, item)
	}
	return details, nil
}

func (ri rawItem) toItem() (EmailItem, error) {
	item := EmailItem{
		ItemDescription: strings.TrimSpace(string(ri.ItemDescription)),
		ItemType:        strings.TrimSpace(string(ri.ItemType)),
	}
	if unit := strings.ToLower(strings.TrimSpace(string(ri.UnitTime))); unit != "" {
		item.UnitTime = &unit
	}

	plot, err := parseOptionalInt(ri.PlotNo)
	if err != nil {
		return EmailItem{}, fmt.Errorf("plot_no: %w", err)
	}
	item.PlotNo = plot

	if item.Quantity, err = parseOptionalDecimal(ri.Quantity); err != nil {
		return EmailItem{}, fmt.Errorf("quantity: %w", err)
	}
	if item.Rate, err = parseOptionalDecimal(ri.Rate); err != nil {
		return EmailItem{}, fmt.Errorf("rate: %w", err)
	}
	if item.NoOfDaysOrHours, err = parseOptionalDecimal(ri.NoOfDaysOrHours); err != nil {
		return EmailItem{}, fmt.Errorf("no_of_days_or_hours: %w", err)
	}
	return item, nil
}

// parseOptionalInt reads a number or the first integer in a string such as
// "Plot 12". Null, empty and digit-free strings yield nil.
func parseOptionalInt(data json.RawMessage) (*int, error) {
	text, ok, err := scalarText(data)
	if err != nil || !ok {
		return nil, err
	}
	match := integerPattern.FindString(text)
	if match == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// parseOptionalDecimal reads a number or the first number in a string such as
// "£120.50".
func parseOptionalDecimal(data json.RawMessage) (*decimal.Decimal, error) {
	text, ok, err := scalarText(data)
	if err != nil || !ok {
		return nil, err
	}
	match := numberPattern.FindString(strings.ReplaceAll(text, ",", ""))
	if match == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(match)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scalarText(data json.RawMessage) (string, bool, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", false, nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", false, err
		}
		s = strings.TrimSpace(s)
		return s, s != "", nil
	case '{', '[':
		return "", false, fmt.Errorf("expected a number, got %s", string(data))
	case 't', 'f':
		return "", false, fmt.Errorf("expected a number, got %s", string(data))
	default:
		return string(data), true, nil
	}
}
