package importer

import "fmt"

// MalformedRowError reports a row missing a required canonical field
// after mapping and derivation. It aborts the file: a truncated or
// header-corrupted export must not produce a partially-correct ledger.
type MalformedRowError struct {
	Line   int
	Field  string
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed row at line %d: field %q: %s", e.Line, e.Field, e.Reason)
}

// UnmappedTypeError reports a raw transaction-type string found in
// neither the type map nor the skip set. Never defaulted: a silently
// misclassified trade corrupts downstream cost-basis tracking, so the
// operator is told exactly which string to add a mapping for.
type UnmappedTypeError struct {
	Line    int
	RawType string
}

func (e *UnmappedTypeError) Error() string {
	return fmt.Sprintf("unmapped transaction type %q at line %d: add it to the type map or skip list", e.RawType, e.Line)
}
