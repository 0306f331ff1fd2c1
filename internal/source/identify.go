package source

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dvloznov/bank-importers/internal/config"
)

// Identify picks the institution bundle that claims a file, matching the
// file name against each bundle's filename pattern and, when the bundle
// also declares a header identifier, the first lines of the file against
// it. The first bundle matching both wins, in the order given.
func Identify(bundles []*config.Institution, filename string, head []byte) (*config.Institution, error) {
	base := filepath.Base(filename)
	headStr := firstLines(string(head), 5)

	for _, inst := range bundles {
		if inst.FilenamePattern != "" {
			ok, err := regexp.MatchString(inst.FilenamePattern, base)
			if err != nil {
				return nil, fmt.Errorf("identify: %s filename_pattern: %w", inst.Name, err)
			}
			if !ok {
				continue
			}
		}
		if inst.HeaderIdentifier != "" {
			ok, err := regexp.MatchString(inst.HeaderIdentifier, headStr)
			if err != nil {
				return nil, fmt.Errorf("identify: %s header_identifier: %w", inst.Name, err)
			}
			if !ok {
				continue
			}
		}
		if inst.FilenamePattern == "" && inst.HeaderIdentifier == "" {
			continue
		}
		return inst, nil
	}
	return nil, fmt.Errorf("identify: no institution bundle matches %s", base)
}

func firstLines(s string, n int) string {
	lines := strings.SplitN(s, "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
