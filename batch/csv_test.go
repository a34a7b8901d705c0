package batch

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"exitforecast/ml"
)

const header = "satisfaction_level,last_evaluation,number_project,average_montly_hours,time_spend_company,Department,salary"

func TestReadCSV(t *testing.T) {
	input := header + "\n0.77,0.98,3,286,3,technical,low\n0.11,0.88,7,272,4,sales,medium\n"
	table, err := ReadCSV(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", table.Len())
	}
	if table.Columns[5] != "Department" {
		t.Fatalf("unexpected header: %v", table.Columns)
	}
	if !reflect.DeepEqual(table.Rows[1], []string{"0.11", "0.88", "7", "272", "4", "sales", "medium"}) {
		t.Fatalf("unexpected row: %v", table.Rows[1])
	}
}

func TestReadCSVStripsByteOrderMark(t *testing.T) {
	input := "\xef\xbb\xbf" + header + "\n0.77,0.98,3,286,3,technical,low\n"
	table, err := ReadCSV(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Columns[0] != "satisfaction_level" {
		t.Fatalf("expected BOM to be stripped, got %q", table.Columns[0])
	}
}

func TestReadCSVWindows1252(t *testing.T) {
	// 0xe9 is "é" in windows-1252.
	input := "name,Department\nRen\xe9,hr\n"
	table, err := ReadCSV(strings.NewReader(input), Options{Encoding: "windows-1252"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Rows[0][0] != "René" {
		t.Fatalf("expected decoded name, got %q", table.Rows[0][0])
	}
}

func TestReadCSVHeaderOnly(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(header+"\n"), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 0 || len(table.Columns) != 7 {
		t.Fatalf("unexpected table: %+v", table)
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  Options
	}{
		{name: "empty", input: ""},
		{name: "ragged row", input: "a,b\n1,2\n3\n"},
		{name: "duplicate column", input: "a,a\n1,2\n"},
		{name: "too many rows", input: "a\n1\n2\n3\n", opts: Options{MaxRows: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input), tt.opts)
			if !errors.Is(err, ErrMalformedCSV) {
				t.Fatalf("expected ErrMalformedCSV, got %v", err)
			}
		})
	}

	if _, err := ReadCSV(strings.NewReader("a\n1\n"), Options{Encoding: "klingon"}); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
}

func TestWriteCSV(t *testing.T) {
	table := &ml.Table{
		Columns: []string{"name", "Prediction"},
		Rows:    [][]string{{"a, b", "Low"}, {"c", "High"}},
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, table); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "name,Prediction\n\"a, b\",Low\nc,High\n"
	if buf.String() != want {
		t.Fatalf("expected %q, got %q", want, buf.String())
	}

	roundTrip, err := ReadCSV(&buf, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(roundTrip, table) {
		t.Fatalf("expected %+v, got %+v", table, roundTrip)
	}
}
