package usage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Reader yields the usage records of one report.
type Reader interface {
	Read() ([]Record, error)
}

// Column names in the carrier report. Matching is case-insensitive.
const (
	ColCustomer         = "customer name"
	ColDescription      = "description"
	ColAmount           = "amount"
	ColQuantity         = "quantity"
	ColStartDate        = "start date"
	ColEndDate          = "end date"
	ColShortDescription = "short description"
	ColProductType      = "product type"
)

var requiredColumns = []string{ColCustomer, ColDescription, ColAmount, ColQuantity, ColStartDate, ColEndDate}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006-01-02 15:04:05", "2/1/2006"}

// MissingColumnError is returned when the report lacks required columns.
type MissingColumnError struct {
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return "usage: report is missing required columns: " + strings.Join(e.Columns, ", ")
}

// CSVReader reads a carrier usage report in CSV form.
type CSVReader struct {
	r io.Reader
}

// NewCSVReader wraps r.
func NewCSVReader(r io.Reader) *CSVReader { return &CSVReader{r: r} }

// ReadFile opens path and reads every record from it.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("usage: open report: %w", err)
	}
	defer f.Close()
	return NewCSVReader(f).Read()
}

// Read implements Reader. It fails before reading any row if a required
// column is absent, and on the first row whose amount, quantity or dates
// cannot be read.
func (c *CSVReader) Read() ([]Record, error) {
	cr := csv.NewReader(c.r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &MissingColumnError{Columns: requiredColumns}
		}
		return nil, fmt.Errorf("usage: read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnError{Columns: missing}
	}

	field := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []Record
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("usage: line %d: %w", line, err)
		}
		if len(strings.Join(row, "")) == 0 {
			continue
		}

		rec := Record{
			CustomerName:  field(row, ColCustomer),
			Description:   field(row, ColDescription),
			ServiceNumber: field(row, ColShortDescription),
			ProductType:   field(row, ColProductType),
			Line:          line,
		}
		if rec.Amount, err = parseDecimal(field(row, ColAmount)); err != nil {
			return nil, fmt.Errorf("usage: line %d: amount: %w", line, err)
		}
		if rec.Quantity, err = parseDecimal(field(row, ColQuantity)); err != nil {
			return nil, fmt.Errorf("usage: line %d: quantity: %w", line, err)
		}
		if rec.StartDate, err = parseDate(field(row, ColStartDate)); err != nil {
			return nil, fmt.Errorf("usage: line %d: start date: %w", line, err)
		}
		if rec.EndDate, err = parseDate(field(row, ColEndDate)); err != nil {
			return nil, fmt.Errorf("usage: line %d: end date: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.NewReplacer("$", "", ",", "").Replace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
