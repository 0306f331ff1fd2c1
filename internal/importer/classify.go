package importer

import "github.com/dvloznov/bank-importers/internal/config"

// Classifier maps raw transaction-type strings onto canonical kinds.
type Classifier struct {
	typeMap     map[string]TxnType
	skip        map[string]bool
	passthrough map[string]bool
}

// NewClassifier builds a classifier from an institution bundle.
func NewClassifier(inst *config.Institution) *Classifier {
	c := &Classifier{
		typeMap:     make(map[string]TxnType, len(inst.TypeMap)),
		skip:        make(map[string]bool, len(inst.SkipTypes)),
		passthrough: make(map[string]bool, len(inst.PassthroughTypes)),
	}
	for raw, kind := range inst.TypeMap {
		c.typeMap[raw] = TxnType(kind)
	}
	for _, raw := range inst.SkipTypes {
		c.skip[raw] = true
	}
	for _, raw := range inst.PassthroughTypes {
		c.passthrough[raw] = true
	}
	return c
}

// Empty reports whether the institution classifies at all. Banking
// exports without a type column skip classification entirely.
func (c *Classifier) Empty() bool {
	return len(c.typeMap) == 0 && len(c.skip) == 0 && len(c.passthrough) == 0
}

// Classify resolves a raw type string. skip=true means the row is
// dropped before any record is produced. A string in neither the map,
// the skip set nor the passthrough list fails loudly.
func (c *Classifier) Classify(raw string, line int) (kind TxnType, skip bool, err error) {
	if c.skip[raw] {
		return "", true, nil
	}
	if kind, ok := c.typeMap[raw]; ok {
		return kind, false, nil
	}
	if c.passthrough[raw] {
		return TxnType(raw), false, nil
	}
	return "", false, &UnmappedTypeError{Line: line, RawType: raw}
}
