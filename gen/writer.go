// Package gen turns a page syntax tree into Go source. The entry point is
// Generate; everything else supports the traversal: the indenting source
// writer, redirectable buffers for out-of-order sections, the fragment
// helper for deferred bodies, and the custom-tag lifecycle emitter.
package gen

import "strings"

const indentStep = "\t"

// Writer accumulates generated source and tracks the current output line
// so nodes can be stamped with the range of lines they produced.
type Writer struct {
	sb     strings.Builder
	indent int
	line   int // 1-based, the line currently being written
	bol    bool
}

func NewWriter() *Writer {
	return &Writer{line: 1, bol: true}
}

// Line returns the number of the line the writer is currently on.
func (w *Writer) Line() int { return w.line }

func (w *Writer) PushIndent() { w.indent++ }

func (w *Writer) PopIndent() {
	if w.indent > 0 {
		w.indent--
	}
}

func (w *Writer) writeIndent() {
	for i := 0; i < w.indent; i++ {
		w.sb.WriteString(indentStep)
	}
	w.bol = false
}

// Printil writes an indented line: indent, s, newline.
func (w *Writer) Printil(s string) {
	w.writeIndent()
	w.sb.WriteString(s)
	w.newline()
}

// Printin writes the indent and s without terminating the line.
func (w *Writer) Printin(s string) {
	if w.bol {
		w.writeIndent()
	}
	w.sb.WriteString(s)
}

// Print appends s to the current line.
func (w *Writer) Print(s string) {
	w.bol = false
	w.sb.WriteString(s)
}

// Println terminates the current line, writing s first if non-empty.
func (w *Writer) Println(s string) {
	if s != "" {
		w.Printin(s)
	}
	w.newline()
}

// PrintMultiLn writes a block of pre-formatted source, keeping the line
// count honest across embedded newlines. Each line gets the current indent
// and the block always ends at the start of a fresh line, so following
// statements never share a line with block text.
func (w *Writer) PrintMultiLn(s string) {
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(s[:i], "\r")
		if line != "" {
			w.writeIndent()
			w.sb.WriteString(line)
		}
		w.newline()
		s = s[i+1:]
	}
	if s != "" {
		w.writeIndent()
		w.sb.WriteString(s)
		w.newline()
	}
}

// WriteBlock appends pre-formatted source verbatim, advancing the line
// count for every newline it contains. Buffers splice through it.
func (w *Writer) WriteBlock(s string) {
	if s == "" {
		return
	}
	w.sb.WriteString(s)
	w.line += strings.Count(s, "\n")
	w.bol = strings.HasSuffix(s, "\n")
}

func (w *Writer) newline() {
	w.sb.WriteByte('\n')
	w.line++
	w.bol = true
}

// String returns everything written so far.
func (w *Writer) String() string { return w.sb.String() }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.sb.Len() }
