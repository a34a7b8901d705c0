package predict

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"exitforecast/ml"
)

const (
	FieldSatisfactionLevel  = "satisfaction_level"
	FieldLastEvaluation     = "last_evaluation"
	FieldNumberProject      = "number_project"
	FieldAverageMonthlyHour = "average_montly_hours"
	FieldTimeSpendCompany   = "time_spend_company"
	FieldDepartment         = "Department"
	FieldSalary             = "salary"
)

// Columns is the fixed input schema, in form order. The preprocessing step
// matches by name, so the spelling (including "montly") is part of the
// contract.
var Columns = []string{
	FieldSatisfactionLevel,
	FieldLastEvaluation,
	FieldNumberProject,
	FieldAverageMonthlyHour,
	FieldTimeSpendCompany,
	FieldDepartment,
	FieldSalary,
}

// Departments and Salaries feed the form selects. They are not used to
// validate input; unseen values are left for the model to reject.
var (
	Departments = []string{"technical", "support", "IT", "management", "marketing", "sales", "product_mng", "accounting", "RandD", "hr"}
	Salaries    = []string{"high", "medium", "low"}
)

var ErrInvalidRecord = errors.New("invalid input record")

type InputRecord struct {
	SatisfactionLevel  float64 `json:"satisfaction_level"`
	LastEvaluation     float64 `json:"last_evaluation"`
	NumberProject      int     `json:"number_project"`
	AverageMonthlyHour int     `json:"average_montly_hours"`
	TimeSpendCompany   int     `json:"time_spend_company"`
	Department         string  `json:"Department"`
	Salary             string  `json:"salary"`
}

// DefaultRecord holds the example values pre-filled in the manual form.
func DefaultRecord() InputRecord {
	return InputRecord{
		SatisfactionLevel:  0.77,
		LastEvaluation:     0.98,
		NumberProject:      3,
		AverageMonthlyHour: 286,
		TimeSpendCompany:   3,
		Department:         "technical",
		Salary:             "low",
	}
}

// Values renders the record in Columns order.
func (r InputRecord) Values() []string {
	return []string{
		strconv.FormatFloat(r.SatisfactionLevel, 'g', -1, 64),
		strconv.FormatFloat(r.LastEvaluation, 'g', -1, 64),
		strconv.Itoa(r.NumberProject),
		strconv.Itoa(r.AverageMonthlyHour),
		strconv.Itoa(r.TimeSpendCompany),
		r.Department,
		r.Salary,
	}
}

// key fails for records json cannot encode, such as non-finite floats.
func (r InputRecord) key() (string, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// RecordsTable builds a table with one row per record.
func RecordsTable(records ...InputRecord) *ml.Table {
	table := ml.NewTable(Columns)
	table.Rows = make([][]string, len(records))
	for i, r := range records {
		table.Rows[i] = r.Values()
	}
	return table
}

// DecodeRecord parses a JSON object that must carry exactly the seven
// schema fields.
func DecodeRecord(payload []byte) (InputRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return InputRecord{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := checkFields(fields); err != nil {
		return InputRecord{}, err
	}

	var record InputRecord
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&record); err != nil {
		return InputRecord{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return record, nil
}

// DecodeRecords parses a JSON array of records.
func DecodeRecords(payload []byte) ([]InputRecord, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	records := make([]InputRecord, len(raw))
	for i, item := range raw {
		record, err := DecodeRecord(item)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records[i] = record
	}
	return records, nil
}

func checkFields(fields map[string]json.RawMessage) error {
	var missing, unknown []string
	for _, col := range Columns {
		if _, ok := fields[col]; !ok {
			missing = append(missing, col)
		}
	}
	for name := range fields {
		if !isColumn(name) {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	switch {
	case len(missing) > 0:
		return fmt.Errorf("%w: missing fields %v", ErrInvalidRecord, missing)
	case len(unknown) > 0:
		return fmt.Errorf("%w: unknown fields %v", ErrInvalidRecord, unknown)
	}
	return nil
}

func isColumn(name string) bool {
	for _, col := range Columns {
		if col == name {
			return true
		}
	}
	return false
}
