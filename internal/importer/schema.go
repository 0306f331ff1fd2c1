package importer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/bank-importers/internal/config"
	"github.com/dvloznov/bank-importers/internal/source"
)

// SchemaMapper renames source columns onto the canonical field set and
// fills the gaps with the institution's named derivations.
type SchemaMapper struct {
	fieldMap map[string]string
	derive   []derivation
}

type derivation struct {
	field string
	name  string
	fn    DeriveFunc
}

// NewSchemaMapper resolves the bundle's derivation names against the
// registry. An unknown name is a configuration error, caught before any
// row is read.
func NewSchemaMapper(inst *config.Institution) (*SchemaMapper, error) {
	m := &SchemaMapper{fieldMap: inst.FieldMap}
	for _, field := range orderedKeys(inst.Derive) {
		name := inst.Derive[field]
		fn, ok := LookupDeriver(name)
		if !ok {
			return nil, fmt.Errorf("schema mapper: institution %s derives %q with unknown function %q (have: %s)",
				inst.Name, field, name, strings.Join(DeriverNames(), ", "))
		}
		m.derive = append(m.derive, derivation{field: field, name: name, fn: fn})
	}
	return m, nil
}

// Map produces a row keyed by canonical field names. Mapped columns are
// renamed, unmapped source columns ride along for derivations to read,
// and the result is projected onto the canonical set. A row whose date
// cell is empty after mapping and derivation is malformed.
func (m *SchemaMapper) Map(row source.Row) (source.Row, error) {
	columns := make([]string, 0, len(row.Columns()))
	cells := make(map[string]string, len(row.Columns()))
	for _, col := range row.Columns() {
		name := col
		if mapped, ok := m.fieldMap[col]; ok {
			name = mapped
		}
		if _, dup := cells[name]; dup {
			return source.Row{}, fmt.Errorf("schema mapper: line %d: column %q maps onto already-present field %q", row.Line, col, name)
		}
		columns = append(columns, name)
		cells[name] = row.Get(col)
	}
	work := source.NewRowFromCells(row.Line, columns, cells)

	for _, d := range m.derive {
		// The field map wins when it already populated the field.
		if v, ok := work.Lookup(d.field); ok && v != "" {
			continue
		}
		v, err := d.fn(work)
		if err != nil {
			return source.Row{}, fmt.Errorf("schema mapper: line %d: deriving %q via %q: %w", row.Line, d.field, d.name, err)
		}
		work = work.With(d.field, v)
	}

	// Project onto the canonical set; extra raw columns are dropped.
	outCols := make([]string, 0, len(work.Columns()))
	outCells := make(map[string]string, len(work.Columns()))
	for _, col := range work.Columns() {
		if config.CanonicalFields[col] {
			outCols = append(outCols, col)
			outCells[col] = work.Get(col)
		}
	}
	out := source.NewRowFromCells(row.Line, outCols, outCells)

	if strings.TrimSpace(out.Get(config.FieldDate)) == "" {
		return source.Row{}, &MalformedRowError{Line: row.Line, Field: config.FieldDate, Reason: "empty after mapping"}
	}
	if _, hasAmount := out.Lookup(config.FieldAmount); !hasAmount {
		if _, hasTotal := out.Lookup(config.FieldTotal); !hasTotal {
			return source.Row{}, &MalformedRowError{Line: row.Line, Field: config.FieldAmount, Reason: "no amount or total column present"}
		}
	}
	return out, nil
}

func orderedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic derivation order; map iteration is not.
	sort.Strings(keys)
	return keys
}
