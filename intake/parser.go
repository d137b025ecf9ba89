package intake

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// ParseCSV reads the flattened intake file produced upstream. The first
// row is a header; every mapped column must be present. Rows become
// patient records in file order.
//
// The mapping is validated in full before the first row is read, so a
// bad column type or date format fails the run before any patient is
// constructed.
func ParseCSV(r io.Reader, mapping Mapping) ([]*Patient, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read intake header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}
	for _, spec := range mapping {
		if _, ok := columns[spec.Column]; !ok {
			return nil, fmt.Errorf("intake file is missing column %q", spec.Column)
		}
	}

	var patients []*Patient
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read intake row %d: %w", line, err)
		}

		p := &Patient{}
		for _, spec := range mapping {
			idx := columns[spec.Column]
			if idx >= len(row) {
				return nil, fmt.Errorf("intake row %d is missing column %q", line, spec.Column)
			}
			value, err := spec.coerce(row[idx])
			if err != nil {
				return nil, fmt.Errorf("intake row %d: %w", line, err)
			}
			if err := assign(p, spec.Field, value); err != nil {
				return nil, fmt.Errorf("intake row %d: %w", line, err)
			}
		}
		patients = append(patients, p)
	}

	return patients, nil
}

// ParseFile opens and parses an intake CSV from disk.
func ParseFile(path string, mapping Mapping) ([]*Patient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open intake file: %w", err)
	}
	defer f.Close()

	return ParseCSV(f, mapping)
}
