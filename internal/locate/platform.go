package locate

import (
	"fmt"

	"github.com/gobwas/glob"
)

// DefaultExcluded are the platform families without a usable discovery
// mechanism, as target-triple patterns.
var DefaultExcluded = []string{
	"*-apple-*",
	"*-freebsd*",
	"*-netbsd*",
	"*-openbsd*",
	"*-dragonfly*",
}

// Platforms matches target triples against a set of glob patterns.
type Platforms struct {
	patterns []string
	globs    []glob.Glob
}

// CompilePlatforms compiles patterns. A nil slice selects DefaultExcluded.
func CompilePlatforms(patterns []string) (*Platforms, error) {
	if patterns == nil {
		patterns = DefaultExcluded
	}
	p := &Platforms{patterns: patterns}
	for _, pat := range patterns {
		g, err := glob.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("platform pattern %q: %w", pat, err)
		}
		p.globs = append(p.globs, g)
	}
	return p, nil
}

// Match reports whether triple matches any pattern.
func (p *Platforms) Match(triple string) bool {
	for _, g := range p.globs {
		if g.Match(triple) {
			return true
		}
	}
	return false
}

// Excluded reports whether both host and target are excluded platforms.
func (p *Platforms) Excluded(host, target string) bool {
	return p.Match(host) && p.Match(target)
}

// Patterns returns the source patterns.
func (p *Platforms) Patterns() []string {
	return append([]string(nil), p.patterns...)
}
