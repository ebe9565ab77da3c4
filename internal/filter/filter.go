package filter

// rule pairs a compiled pattern with its verdict.
type rule struct {
	pattern *compiledPattern
	include bool
}

// Chain is an ordered list of include/exclude rules. An empty chain
// includes everything, which keeps unfiltered syncs exact mirrors.
type Chain struct {
	rules []rule
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

func (c *Chain) add(pattern string, include bool) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, rule{pattern: cp, include: include})
	return nil
}

// AddInclude appends an include rule for pattern.
func (c *Chain) AddInclude(pattern string) error { return c.add(pattern, true) }

// AddExclude appends an exclude rule for pattern.
func (c *Chain) AddExclude(pattern string) error { return c.add(pattern, false) }

// Empty reports whether the chain has no rules.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0
}

// Match reports whether relPath survives the chain, i.e. takes part in
// the sync. relPath is slash-separated and relative to the tree root;
// isDir marks directories. The first rule that matches decides, and an
// unmatched path is included. The same chain gates both trees, so an
// excluded path is neither copied nor deleted.
func (c *Chain) Match(relPath string, isDir bool) bool {
	for _, r := range c.rules {
		if r.pattern.match(relPath, isDir) {
			return r.include
		}
	}
	return true
}
