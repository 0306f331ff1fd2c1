package importer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/bank-importers/internal/config"
	"github.com/dvloznov/bank-importers/internal/source"
)

// DeriveFunc computes a canonical field's cell from a row. The row it
// receives carries the canonical renames plus every unmapped source
// column, so derivations can read either vocabulary.
type DeriveFunc func(row source.Row) (string, error)

var (
	deriveMu       sync.RWMutex
	deriveRegistry = map[string]DeriveFunc{}
)

// RegisterDeriver adds a named derivation to the registry. Institution
// bundles reference derivations by these names. Registering a duplicate
// name panics; derivations are wired at init time and a collision is a
// programming error.
func RegisterDeriver(name string, fn DeriveFunc) {
	deriveMu.Lock()
	defer deriveMu.Unlock()
	if _, exists := deriveRegistry[name]; exists {
		panic(fmt.Sprintf("importer: deriver %q registered twice", name))
	}
	deriveRegistry[name] = fn
}

// LookupDeriver resolves a derivation by name.
func LookupDeriver(name string) (DeriveFunc, bool) {
	deriveMu.RLock()
	defer deriveMu.RUnlock()
	fn, ok := deriveRegistry[name]
	return fn, ok
}

// DeriverNames lists the registered derivation names, sorted.
func DeriverNames() []string {
	deriveMu.RLock()
	defer deriveMu.RUnlock()
	names := make([]string, 0, len(deriveRegistry))
	for name := range deriveRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	// Generic derivations shared across institutions.
	RegisterDeriver("copy_date", func(row source.Row) (string, error) {
		return row.Get(config.FieldDate), nil
	})
	RegisterDeriver("copy_amount", func(row source.Row) (string, error) {
		return row.Get(config.FieldAmount), nil
	})
	RegisterDeriver("empty", func(source.Row) (string, error) {
		return "", nil
	})
}
