// Package costlist edits the repeatable resource/amount rows attached to
// generators and upgrades. Rows hold raw text exactly as typed; Validate turns a
// whole list into stored cost entries once every row is acceptable.
package costlist

import (
	"fmt"
	"strings"

	"blueprintcore/pkg/domain"
	"blueprintcore/pkg/numeric"
)

// DefaultAmount is the amount pre-filled into a freshly added row.
const DefaultAmount = "10"

// Row is one editable cost line.
type Row struct {
	Resource string `json:"resource"`
	Amount   string `json:"amount"`
}

// List is an ordered sequence of rows. Duplicate resources are allowed.
type List []Row

// Resolver reports whether a resource key exists.
type Resolver interface {
	ResourceExists(key string) bool
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(key string) bool

// ResourceExists calls f(key).
func (f ResolverFunc) ResourceExists(key string) bool { return f(key) }

// RowError wraps the failure of a single row.
type RowError struct {
	Index int
	Field string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// IndexError reports a row position outside the list.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("cost row %d out of range (%d rows)", e.Index, e.Len)
}

// FieldName returns the addressable name of a row field, e.g. costs[1].amount.
func FieldName(index int, field string) string {
	return fmt.Sprintf("costs[%d].%s", index, field)
}

// AddRow appends a placeholder row with an empty resource and the default amount.
func AddRow(list List) List {
	out := make(List, len(list), len(list)+1)
	copy(out, list)
	return append(out, Row{Amount: DefaultAmount})
}

// RemoveRow drops the row at index; later rows shift down by one.
func RemoveRow(list List, index int) (List, error) {
	if index < 0 || index >= len(list) {
		return list, &IndexError{Index: index, Len: len(list)}
	}
	out := make(List, 0, len(list)-1)
	out = append(out, list[:index]...)
	return append(out, list[index+1:]...), nil
}

// SetAmount replaces the raw amount of one row.
func SetAmount(list List, index int, raw string) (List, Row, error) {
	return update(list, index, func(r *Row) { r.Amount = raw })
}

// SetResource replaces the resource key of one row.
func SetResource(list List, index int, key string) (List, Row, error) {
	return update(list, index, func(r *Row) { r.Resource = key })
}

func update(list List, index int, fn func(*Row)) (List, Row, error) {
	if index < 0 || index >= len(list) {
		return list, Row{}, &IndexError{Index: index, Len: len(list)}
	}
	out := make(List, len(list))
	copy(out, list)
	fn(&out[index])
	return out, out[index], nil
}

// ValidateRow checks a single row and returns its stored form.
func ValidateRow(index int, row Row, resolver Resolver) (domain.CostEntry, error) {
	key := strings.TrimSpace(row.Resource)
	if key == "" {
		field := FieldName(index, "resource")
		return domain.CostEntry{}, &RowError{Index: index, Field: field, Err: &domain.DanglingReferenceError{
			FieldName: field,
			Target:    domain.Ref{Entity: domain.EntityResource},
		}}
	}
	if resolver != nil && !resolver.ResourceExists(key) {
		field := FieldName(index, "resource")
		return domain.CostEntry{}, &RowError{Index: index, Field: field, Err: &domain.DanglingReferenceError{
			FieldName: field,
			Target:    domain.Ref{Entity: domain.EntityResource, Key: key},
		}}
	}
	field := FieldName(index, "amount")
	amount, err := numeric.ValidateField(field, row.Amount)
	if err != nil {
		return domain.CostEntry{}, &RowError{Index: index, Field: field, Err: err}
	}
	return domain.CostEntry{Resource: key, Amount: amount}, nil
}

// Validate converts the list into cost entries, reporting the first failing row.
// A nil resolver skips the existence check.
func Validate(list List, resolver Resolver) ([]domain.CostEntry, error) {
	entries := make([]domain.CostEntry, 0, len(list))
	for i, row := range list {
		entry, err := ValidateRow(i, row, resolver)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// FromEntries renders stored entries back into editable rows.
func FromEntries(entries []domain.CostEntry) List {
	list := make(List, len(entries))
	for i, e := range entries {
		list[i] = Row{Resource: e.Resource, Amount: numeric.Format(e.Amount)}
	}
	return list
}
