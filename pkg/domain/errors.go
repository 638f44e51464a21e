package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures returned by validators and stores.
type ErrorKind string

// Error kinds surfaced to the editor surface.
const (
	KindInvalidNumber      ErrorKind = "InvalidNumber"
	KindInvalidName        ErrorKind = "InvalidName"
	KindDuplicateKey       ErrorKind = "DuplicateKey"
	KindDanglingReference  ErrorKind = "DanglingReference"
	KindReferencedByOthers ErrorKind = "ReferencedByOthers"
	KindNotFound           ErrorKind = "NotFound"
	KindEmptyItemGroup     ErrorKind = "EmptyItemGroup"
	KindVersionConflict    ErrorKind = "VersionConflict"
	KindInvalidFormula     ErrorKind = "InvalidFormula"
	KindRuleViolation      ErrorKind = "RuleViolation"
)

// KindedError is implemented by every error in the taxonomy.
type KindedError interface {
	error
	Kind() ErrorKind
	Field() string
}

// KindOf returns the kind of the first taxonomy error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var ke KindedError
	if errors.As(err, &ke) {
		return ke.Kind(), true
	}
	var rv RuleViolationError
	if errors.As(err, &rv) {
		return KindRuleViolation, true
	}
	return "", false
}

// FieldOf returns the field attached to the first taxonomy error in err's chain.
func FieldOf(err error) string {
	var ke KindedError
	if errors.As(err, &ke) {
		return ke.Field()
	}
	var rv RuleViolationError
	if errors.As(err, &rv) {
		for _, v := range rv.Result.Violations {
			if v.Severity == SeverityBlock {
				return v.Field
			}
		}
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// InvalidNumberError reports a raw numeric field that failed parsing.
type InvalidNumberError struct {
	FieldName string
	Raw       string
	Reason    string
}

func (e *InvalidNumberError) Error() string {
	msg := fmt.Sprintf("Invalid number %q", e.Raw)
	if e.FieldName != "" {
		msg = e.FieldName + ": " + msg
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidNumberError) Kind() ErrorKind { return KindInvalidNumber }
func (e *InvalidNumberError) Field() string   { return e.FieldName }

// InvalidFormulaError reports an expression that does not compile or evaluate to a number.
type InvalidFormulaError struct {
	FieldName  string
	Expression string
	Err        error
}

func (e *InvalidFormulaError) Error() string {
	return fmt.Sprintf("%s: invalid formula %q: %v", e.FieldName, e.Expression, e.Err)
}

func (e *InvalidFormulaError) Unwrap() error   { return e.Err }
func (e *InvalidFormulaError) Kind() ErrorKind { return KindInvalidFormula }
func (e *InvalidFormulaError) Field() string   { return e.FieldName }

// InvalidNameError reports a display name that derives to an empty identifier.
type InvalidNameError struct {
	Entity      EntityType
	DisplayName string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("%s display name %q does not yield a usable key", e.Entity, e.DisplayName)
}

func (e *InvalidNameError) Kind() ErrorKind { return KindInvalidName }
func (e *InvalidNameError) Field() string   { return "display_name" }

// DuplicateKeyError reports a derived key colliding within its collection.
type DuplicateKeyError struct {
	Entity EntityType
	Key    string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.Key)
}

func (e *DuplicateKeyError) Kind() ErrorKind { return KindDuplicateKey }
func (e *DuplicateKeyError) Field() string   { return "display_name" }

// DanglingReferenceError reports a reference to a key absent from its collection.
type DanglingReferenceError struct {
	FieldName string
	Target    Ref
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s references missing %s %q", e.FieldName, e.Target.Entity, e.Target.Key)
}

func (e *DanglingReferenceError) Kind() ErrorKind { return KindDanglingReference }
func (e *DanglingReferenceError) Field() string   { return e.FieldName }

// ReferencedByOthersError reports a delete refused because dependents exist.
type ReferencedByOthersError struct {
	Target     Ref
	Dependents []Ref
}

func (e *ReferencedByOthersError) Error() string {
	names := make([]string, len(e.Dependents))
	for i, d := range e.Dependents {
		names[i] = d.String()
	}
	return fmt.Sprintf("%s %q still referenced by %s", e.Target.Entity, e.Target.Key, strings.Join(names, ", "))
}

func (e *ReferencedByOthersError) Kind() ErrorKind { return KindReferencedByOthers }
func (e *ReferencedByOthersError) Field() string   { return "" }

// NotFoundError reports an update or delete against an absent key.
type NotFoundError struct {
	Entity EntityType
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

func (e *NotFoundError) Kind() ErrorKind { return KindNotFound }
func (e *NotFoundError) Field() string   { return "" }

// EmptyItemGroupError reports an item group with no populated slot.
type EmptyItemGroupError struct {
	Tier string
}

func (e *EmptyItemGroupError) Error() string {
	return fmt.Sprintf("item group for tier %q must reference at least one resource, generator or upgrade", e.Tier)
}

func (e *EmptyItemGroupError) Kind() ErrorKind { return KindEmptyItemGroup }
func (e *EmptyItemGroupError) Field() string   { return "item_groups" }

// VersionConflictError reports an optimistic concurrency mismatch.
type VersionConflictError struct {
	Entity   EntityType
	Key      string
	Expected int64
	Actual   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s %q is at version %d, expected %d", e.Entity, e.Key, e.Actual, e.Expected)
}

func (e *VersionConflictError) Kind() ErrorKind { return KindVersionConflict }
func (e *VersionConflictError) Field() string   { return "version" }
