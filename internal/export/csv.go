// Package export renders ledger entries as downloadable files.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/url"
	"strings"

	"accountbook/internal/core"
)

// bom makes spreadsheet tools read the file as UTF-8.
var bom = []byte{0xEF, 0xBB, 0xBF}

// Header is the column order shared by every export format.
var Header = []string{"날짜", "구분", "내용", "카테고리", "금액", "결제수단"}

const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// CSV serializes entries in the given order. The output depends only on
// the entries, so equal input yields identical bytes.
func CSV(entries []core.Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(bom)

	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range entries {
		if err := w.Write(row(e)); err != nil {
			return nil, fmt.Errorf("write csv row %s: %w", e.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseCSV reads a file produced by CSV back into rows, header excluded.
func ParseCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, bom)))
	r.FieldsPerRecord = len(Header)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parse csv: missing header")
	}
	return records[1:], nil
}

func row(e core.Entry) []string {
	return []string{
		e.Date.String(),
		e.Type.Label(),
		e.Description,
		e.Category,
		e.Amount.String(),
		e.PaymentMethod,
	}
}

// FileName returns the download name for an export scope such as a month
// key, e.g. 가계부_2024-06.csv.
func FileName(scope, ext string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "전체"
	}
	return fmt.Sprintf("가계부_%s.%s", scope, strings.TrimPrefix(ext, "."))
}

// ContentDisposition builds an attachment header value that survives
// non-ASCII file names.
func ContentDisposition(name string) string {
	return fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(name))
}
