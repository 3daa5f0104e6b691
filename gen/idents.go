package gen

import (
	"fmt"
	"sort"
	"strings"

	"gosp/ast"
	"gosp/el"
)

// makeIdentifier turns an arbitrary name into a legal Go identifier part.
// Runes outside [A-Za-z0-9_] are replaced by an underscore and four hex
// digits, so distinct names stay distinct.
func makeIdentifier(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			fmt.Fprintf(&b, "_%04x", r)
		}
	}
	return b.String()
}

// quote renders s as a Go string literal.
func quote(s string) string { return el.Quote(s) }

// quoteByte renders c as a Go byte literal for single-byte writes.
func quoteByte(c byte) string {
	switch c {
	case '\'':
		return `'\''`
	case '\\':
		return `'\\'`
	case '\n':
		return `'\n'`
	case '\r':
		return `'\r'`
	case '\t':
		return `'\t'`
	default:
		return fmt.Sprintf("'%c'", c)
	}
}

// poolName derives the pool identifier for a custom tag call site. Call
// sites of the same tag with the same attribute set share a pool, so the
// name is built from the tag's qualified name and its sorted attribute
// names; a bodyless call gets its own pool.
func poolName(n *ast.CustomTag) string {
	names := make([]string, 0, len(n.Attrs))
	for i := range n.Attrs {
		names = append(names, n.Attrs[i].Name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	var b strings.Builder
	b.WriteString("_gosp_pool_")
	b.WriteString(makeIdentifier(n.Prefix))
	b.WriteByte('_')
	b.WriteString(makeIdentifier(n.Name))
	for _, name := range names {
		b.WriteByte('_')
		b.WriteString(makeIdentifier(name))
	}
	if n.HasEmptyBody() {
		b.WriteString("_nobody")
	}
	return b.String()
}

// tagVarNames hands out handler variable names, one counter per qualified
// tag name, so repeated uses of the same tag stay readable.
type tagVarNames struct {
	counts map[string]int
}

func newTagVarNames() *tagVarNames {
	return &tagVarNames{counts: make(map[string]int)}
}

func (t *tagVarNames) next(prefix, shortName string) string {
	qn := prefix + ":" + shortName
	n := t.counts[qn]
	t.counts[qn] = n + 1
	return fmt.Sprintf("_gosp_th_%s_%s_%d",
		makeIdentifier(prefix), makeIdentifier(shortName), n)
}
