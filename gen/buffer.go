package gen

import "gosp/ast"

// Buffer collects a section of generated source out of order: fragment
// bodies, split methods, and the page body itself are generated into
// buffers and spliced into the output file once their leading lines are
// known.
//
// While a buffer is open, line stamps recorded for nodes generated into it
// are relative to the buffer's first line. SpliceInto rebases them. The
// owned nodes are marked so an enclosing buffer skips them when it rebases
// its own stamps.
type Buffer struct {
	W *Writer

	owned   []ast.Node
	spliced bool
}

// NewBuffer opens a buffer owning the given subtrees.
func NewBuffer(owned []ast.Node) *Buffer {
	for _, n := range owned {
		n.SetInBuffer(true)
	}
	return &Buffer{W: NewWriter(), owned: owned}
}

// AdjustLines shifts every line stamp recorded inside this buffer by
// offset. Stamps owned by a nested buffer keep their own relative lines;
// that buffer rebases them when it is spliced.
func (b *Buffer) AdjustLines(offset int) {
	if offset == 0 {
		return
	}
	for _, n := range b.owned {
		shiftTree(n, offset)
	}
}

func shiftTree(n ast.Node, offset int) {
	n.ShiftGen(offset)
	for _, list := range ast.Children(n) {
		if list == nil {
			continue
		}
		for _, c := range list.Nodes {
			if c.InBuffer() {
				continue
			}
			shiftTree(c, offset)
		}
	}
}

// SpliceInto writes the buffer's text into dst and rebases the line stamps
// recorded inside it. The first buffer line lands on dst's current line,
// so the offset is that line minus one. A buffer splices once.
func (b *Buffer) SpliceInto(dst *Writer) {
	if b.spliced {
		return
	}
	b.spliced = true
	b.AdjustLines(dst.Line() - 1)
	dst.WriteBlock(b.W.String())
}
