package intake

import (
	"fmt"
	"strings"
	"time"
)

// Column type tags accepted by the intake mapping. Anything else is a
// fatal configuration error, caught before any patient is constructed.
const (
	TypeString = "string"
	TypeList   = "list"
	TypeBool   = "bool"
	TypeDate   = "date"
)

// ColumnSpec maps one source spreadsheet column onto a patient field
// with a declared coercion.
type ColumnSpec struct {
	Column     string `mapstructure:"column"`
	Field      string `mapstructure:"field"`
	Type       string `mapstructure:"type"`
	DateFormat string `mapstructure:"date_format"`
}

// Mapping is the ordered list of column specs for one intake file.
type Mapping []ColumnSpec

// Validate checks every spec before parsing starts: recognized type
// tags, date formats that translate, and target fields that exist on
// the patient record.
func (m Mapping) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("intake mapping is empty")
	}
	for _, spec := range m {
		switch spec.Type {
		case TypeString, TypeList, TypeBool:
		case TypeDate:
			if _, err := StrptimeLayout(spec.DateFormat); err != nil {
				return fmt.Errorf("column %q: %w", spec.Column, err)
			}
		default:
			return fmt.Errorf("column %q has unknown type tag %q", spec.Column, spec.Type)
		}
		if !knownField(spec.Field) {
			return fmt.Errorf("column %q maps to unknown patient field %q", spec.Column, spec.Field)
		}
	}
	return nil
}

func knownField(field string) bool {
	switch field {
	case "first_name", "last_name", "fiscal_code", "birth_date",
		"insurance_name", "exam_code", "service_category", "references",
		"second_reference":
		return true
	}
	return false
}

// coerce converts one raw cell according to the spec's type tag.
func (spec ColumnSpec) coerce(raw string) (any, error) {
	switch spec.Type {
	case TypeString:
		return raw, nil
	case TypeList:
		return parseList(raw), nil
	case TypeBool:
		return strings.EqualFold(strings.TrimSpace(raw), "true"), nil
	case TypeDate:
		layout, err := StrptimeLayout(spec.DateFormat)
		if err != nil {
			return nil, err
		}
		t, err := time.Parse(layout, strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("column %q: invalid date %q: %w", spec.Column, raw, err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("column %q has unknown type tag %q", spec.Column, spec.Type)
	}
}

// parseList reads the upstream flattener's list serialization, e.g.
// ['XB123456', 'BB654321'], and tolerates bare comma-separated values.
// Empty input is an empty list.
func parseList(raw string) []string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.Trim(strings.TrimSpace(part), `'"`)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// assign writes a coerced value onto the patient record. The switch is
// closed: a spec naming an unmapped field was already rejected by
// Validate.
func assign(p *Patient, field string, value any) error {
	stringTargets := map[string]*string{
		"first_name":       &p.FirstName,
		"last_name":        &p.LastName,
		"fiscal_code":      &p.FiscalCode,
		"insurance_name":   &p.InsuranceName,
		"exam_code":        &p.ExamCode,
		"service_category": &p.ServiceCategory,
	}
	if dst, ok := stringTargets[field]; ok {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q requires a string column", field)
		}
		*dst = s
		return nil
	}

	switch field {
	case "birth_date":
		t, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("field %q requires a date column", field)
		}
		p.BirthDate = t
	case "references":
		refs, ok := value.([]string)
		if !ok {
			return fmt.Errorf("field %q requires a list column", field)
		}
		p.References = refs
	case "second_reference":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("field %q requires a bool column", field)
		}
		p.SecondReference = b
	default:
		return fmt.Errorf("unknown patient field %q", field)
	}
	return nil
}
