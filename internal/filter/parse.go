package filter

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadFile reads filter rules from a file and appends them to the chain
// in file order. Format, one rule per line:
//
//	+ pattern   include
//	- pattern   exclude
//	pattern     exclude (rsync default)
//	# comment   skipped, as are blank lines
func (c *Chain) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for lineNum := 1; sc.Scan(); lineNum++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		add := c.AddExclude
		if rest, ok := strings.CutPrefix(line, "+ "); ok {
			add = c.AddInclude
			line = strings.TrimSpace(rest)
		} else if rest, ok := strings.CutPrefix(line, "- "); ok {
			line = strings.TrimSpace(rest)
		}

		if err := add(line); err != nil {
			return fmt.Errorf("filter file %s line %d: %w", path, lineNum, err)
		}
	}
	return sc.Err()
}
