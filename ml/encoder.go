package ml

import (
	"fmt"
	"math"
)

type FieldKind int

const (
	Numeric FieldKind = iota
	Categorical
)

// Field declares one raw input. Categorical fields map to the one-hot group
// "<Prefix>_<value>"; Prefix defaults to Name.
type Field struct {
	Name   string
	Kind   FieldKind
	Prefix string
}

// Record is one raw prediction request.
type Record struct {
	Numeric     map[string]float64 `json:"numeric"`
	Categorical map[string]string  `json:"categorical"`
}

type numericSlot struct {
	field string
	index int
}

type categoricalSlot struct {
	field  string
	prefix string
	slots  map[string]int
	known  map[string]bool
}

// Encoder turns records into vectors aligned with a schema. The slot table is
// resolved once at construction and never changes afterwards.
type Encoder struct {
	features    []string
	numeric     []numericSlot
	categorical []categoricalSlot
	strict      bool
}

// NewEncoder resolves every field against the schema. A numeric field without a
// slot of the same name is a configuration error. With strict set, categorical
// values that were never seen in training are rejected instead of encoded as
// the reference level.
func NewEncoder(schema *Schema, fields []Field, strict bool) (*Encoder, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	index := make(map[string]int, len(schema.Features))
	for i, name := range schema.Features {
		index[name] = i
	}

	enc := &Encoder{
		features: append([]string(nil), schema.Features...),
		strict:   strict,
	}
	for _, field := range fields {
		switch field.Kind {
		case Numeric:
			idx, ok := index[field.Name]
			if !ok {
				return nil, fmt.Errorf("%w: numeric field %q has no slot", ErrSchemaMismatch, field.Name)
			}
			enc.numeric = append(enc.numeric, numericSlot{field: field.Name, index: idx})
		case Categorical:
			prefix := field.Prefix
			if prefix == "" {
				prefix = field.Name
			}
			group := categoricalSlot{
				field:  field.Name,
				prefix: prefix,
				slots:  make(map[string]int),
				known:  make(map[string]bool),
			}
			head := prefix + "_"
			for i, name := range schema.Features {
				if len(name) > len(head) && name[:len(head)] == head {
					group.slots[name[len(head):]] = i
					group.known[name[len(head):]] = true
				}
			}
			for _, level := range schema.Categories[field.Name] {
				group.known[level] = true
			}
			enc.categorical = append(enc.categorical, group)
		default:
			return nil, fmt.Errorf("field %q has unknown kind %d", field.Name, field.Kind)
		}
	}
	return enc, nil
}

// Width is the length of every encoded vector.
func (e *Encoder) Width() int {
	return len(e.features)
}

// Features returns the slot names in vector order.
func (e *Encoder) Features() []string {
	return append([]string(nil), e.features...)
}

// Encode builds the single-row vector. Slots not touched by the record stay 0.
func (e *Encoder) Encode(record Record) ([]float64, error) {
	vector := make([]float64, len(e.features))
	for _, slot := range e.numeric {
		v, ok := record.Numeric[slot.field]
		if !ok {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s is %v", ErrInvalidValue, slot.field, v)
		}
		vector[slot.index] = v
	}
	for _, group := range e.categorical {
		value, ok := record.Categorical[group.field]
		if !ok {
			continue
		}
		if idx, ok := group.slots[value]; ok {
			vector[idx] = 1
			continue
		}
		if e.strict && !group.known[value] {
			return nil, fmt.Errorf("%w: %s=%q", ErrUnknownCategory, group.field, value)
		}
	}
	return vector, nil
}
