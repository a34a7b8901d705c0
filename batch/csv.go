// Package batch reads uploaded prediction tables and writes the augmented
// result tables back out as CSV.
package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"exitforecast/ml"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var ErrMalformedCSV = errors.New("malformed csv")

const DefaultEncoding = "utf-8"

type Options struct {
	// Encoding is a WHATWG label such as "utf-8" or "windows-1252".
	Encoding string
	// MaxRows limits the number of data rows; 0 means unlimited.
	MaxRows int
}

// Decoder resolves the configured charset. A UTF-8 or UTF-16 byte order mark
// in the upload always takes precedence.
func Decoder(label string) (transform.Transformer, error) {
	if strings.TrimSpace(label) == "" {
		label = DefaultEncoding
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	return unicode.BOMOverride(enc.NewDecoder()), nil
}

// ReadCSV parses a comma-separated table with a header row. Every row must
// have as many fields as the header.
func ReadCSV(r io.Reader, opts Options) (*ml.Table, error) {
	dec, err := Decoder(opts.Encoding)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(transform.NewReader(r, dec))
	reader.FieldsPerRecord = 0

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: file is empty", ErrMalformedCSV)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCSV, err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	table := ml.NewTable(header)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedCSV, err)
		}
		if opts.MaxRows > 0 && table.Len() >= opts.MaxRows {
			return nil, fmt.Errorf("%w: more than %d rows", ErrMalformedCSV, opts.MaxRows)
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

// WriteCSV writes the header and rows of t, without an index column.
func WriteCSV(w io.Writer, t *ml.Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return err
	}
	if err := writer.WriteAll(t.Rows); err != nil {
		return err
	}
	return writer.Error()
}

func checkHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	for _, col := range header {
		if seen[col] {
			return fmt.Errorf("%w: duplicate column %q", ErrMalformedCSV, col)
		}
		seen[col] = true
	}
	return nil
}
