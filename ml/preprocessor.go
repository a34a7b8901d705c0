package ml

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	HandleUnknownError  = "error"
	HandleUnknownIgnore = "ignore"
)

// ColumnEncoder encodes a fixed set of named input columns into a block of
// numeric output features.
type ColumnEncoder interface {
	Name() string
	Columns() []string
	Width() int
	Encode(values []string, dst []float64) error
	FeatureNames() []string
}

// ColumnTransformer concatenates the output of its encoders, in order, into
// one feature vector per table row.
type ColumnTransformer struct {
	encoders []ColumnEncoder
	width    int
}

func NewColumnTransformer(encoders ...ColumnEncoder) (*ColumnTransformer, error) {
	if len(encoders) == 0 {
		return nil, errors.New("column transformer has no encoders")
	}
	seen := make(map[string]bool, len(encoders))
	width := 0
	for _, enc := range encoders {
		if seen[enc.Name()] {
			return nil, fmt.Errorf("duplicate transformer name %s", enc.Name())
		}
		seen[enc.Name()] = true
		width += enc.Width()
	}
	return &ColumnTransformer{encoders: encoders, width: width}, nil
}

func (c *ColumnTransformer) Width() int {
	return c.width
}

// InputColumns lists every column the transformer reads, in encoder order.
func (c *ColumnTransformer) InputColumns() []string {
	var cols []string
	for _, enc := range c.encoders {
		cols = append(cols, enc.Columns()...)
	}
	return cols
}

func (c *ColumnTransformer) Transform(t *Table) ([][]float64, error) {
	if t == nil {
		return nil, errors.New("table is nil")
	}

	indexes := make([][]int, len(c.encoders))
	for i, enc := range c.encoders {
		cols := enc.Columns()
		indexes[i] = make([]int, len(cols))
		for j, col := range cols {
			idx := t.Index(col)
			if idx < 0 {
				return nil, &SchemaMismatchError{Column: col, Reason: "column is missing"}
			}
			indexes[i][j] = idx
		}
	}

	matrix := make([][]float64, len(t.Rows))
	for r, row := range t.Rows {
		vector := make([]float64, c.width)
		offset := 0
		for i, enc := range c.encoders {
			values := make([]string, len(indexes[i]))
			for j, idx := range indexes[i] {
				if idx >= len(row) {
					return nil, &SchemaMismatchError{Column: enc.Columns()[j], Reason: fmt.Sprintf("row %d is too short", r)}
				}
				values[j] = row[idx]
			}
			if err := enc.Encode(values, vector[offset:offset+enc.Width()]); err != nil {
				return nil, err
			}
			offset += enc.Width()
		}
		matrix[r] = vector
	}
	return matrix, nil
}

func (c *ColumnTransformer) OutputFeatureNames() ([]string, error) {
	names := make([]string, 0, c.width)
	for _, enc := range c.encoders {
		names = append(names, enc.FeatureNames()...)
	}
	if len(names) != c.width {
		return nil, fmt.Errorf("expected %d feature names, got %d", c.width, len(names))
	}
	return names, nil
}

// StandardScaler centers and scales numeric columns with statistics fixed
// at fit time.
type StandardScaler struct {
	name    string
	columns []string
	mean    []float64
	scale   []float64
}

func NewStandardScaler(name string, columns []string, mean, scale []float64) (*StandardScaler, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("scaler %s has no columns", name)
	}
	if len(mean) != len(columns) || len(scale) != len(columns) {
		return nil, fmt.Errorf("scaler %s: %d columns, %d means, %d scales", name, len(columns), len(mean), len(scale))
	}
	return &StandardScaler{name: name, columns: columns, mean: mean, scale: scale}, nil
}

func (s *StandardScaler) Name() string      { return s.name }
func (s *StandardScaler) Columns() []string { return s.columns }
func (s *StandardScaler) Width() int        { return len(s.columns) }

func (s *StandardScaler) Encode(values []string, dst []float64) error {
	for i, raw := range values {
		x, err := parseNumber(s.columns[i], raw)
		if err != nil {
			return err
		}
		scale := s.scale[i]
		if scale == 0 {
			scale = 1
		}
		dst[i] = (x - s.mean[i]) / scale
	}
	return nil
}

func (s *StandardScaler) FeatureNames() []string {
	return prefixed(s.name, s.columns)
}

// Passthrough forwards numeric columns unchanged.
type Passthrough struct {
	name    string
	columns []string
}

func NewPassthrough(name string, columns []string) (*Passthrough, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("passthrough %s has no columns", name)
	}
	return &Passthrough{name: name, columns: columns}, nil
}

func (p *Passthrough) Name() string      { return p.name }
func (p *Passthrough) Columns() []string { return p.columns }
func (p *Passthrough) Width() int        { return len(p.columns) }

func (p *Passthrough) Encode(values []string, dst []float64) error {
	for i, raw := range values {
		x, err := parseNumber(p.columns[i], raw)
		if err != nil {
			return err
		}
		dst[i] = x
	}
	return nil
}

func (p *Passthrough) FeatureNames() []string {
	return prefixed(p.name, p.columns)
}

// OneHotEncoder expands each categorical column into one indicator per
// category seen at fit time.
type OneHotEncoder struct {
	name          string
	columns       []string
	categories    [][]string
	lookup        []map[string]int
	handleUnknown string
	width         int
}

func NewOneHotEncoder(name string, columns []string, categories [][]string, handleUnknown string) (*OneHotEncoder, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("encoder %s has no columns", name)
	}
	if len(categories) != len(columns) {
		return nil, fmt.Errorf("encoder %s: %d columns but %d category lists", name, len(columns), len(categories))
	}
	switch handleUnknown {
	case "":
		handleUnknown = HandleUnknownError
	case HandleUnknownError, HandleUnknownIgnore:
	default:
		return nil, fmt.Errorf("encoder %s: unsupported handle_unknown %q", name, handleUnknown)
	}

	enc := &OneHotEncoder{
		name:          name,
		columns:       columns,
		categories:    categories,
		lookup:        make([]map[string]int, len(columns)),
		handleUnknown: handleUnknown,
	}
	for i, cats := range categories {
		if len(cats) == 0 {
			return nil, fmt.Errorf("encoder %s: column %s has no categories", name, columns[i])
		}
		enc.lookup[i] = make(map[string]int, len(cats))
		for j, cat := range cats {
			if _, dup := enc.lookup[i][cat]; dup {
				return nil, fmt.Errorf("encoder %s: duplicate category %q in %s", name, cat, columns[i])
			}
			enc.lookup[i][cat] = j
		}
		enc.width += len(cats)
	}
	return enc, nil
}

func (o *OneHotEncoder) Name() string      { return o.name }
func (o *OneHotEncoder) Columns() []string { return o.columns }
func (o *OneHotEncoder) Width() int        { return o.width }

// Categories returns the fitted categories of column, or nil.
func (o *OneHotEncoder) Categories(column string) []string {
	for i, col := range o.columns {
		if col == column {
			return o.categories[i]
		}
	}
	return nil
}

func (o *OneHotEncoder) Encode(values []string, dst []float64) error {
	offset := 0
	for i, value := range values {
		for j := 0; j < len(o.categories[i]); j++ {
			dst[offset+j] = 0
		}
		pos, ok := o.lookup[i][value]
		if !ok {
			if o.handleUnknown == HandleUnknownError {
				return &SchemaMismatchError{Column: o.columns[i], Value: value, Reason: "unknown category"}
			}
		} else {
			dst[offset+pos] = 1
		}
		offset += len(o.categories[i])
	}
	return nil
}

func (o *OneHotEncoder) FeatureNames() []string {
	names := make([]string, 0, o.width)
	for i, col := range o.columns {
		for _, cat := range o.categories[i] {
			names = append(names, o.name+"__"+col+"_"+cat)
		}
	}
	return names
}

func parseNumber(column, raw string) (float64, error) {
	x, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, &SchemaMismatchError{Column: column, Value: raw, Reason: "not a number"}
	}
	return x, nil
}

func prefixed(prefix string, columns []string) []string {
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = prefix + "__" + col
	}
	return names
}
