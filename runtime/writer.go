package runtime

import (
	"errors"
	"io"
	"strings"
)

// ErrCommitted is returned when buffered output can no longer be discarded
// because part of it already reached the destination.
var ErrCommitted = errors.New("response already committed")

// Writer is the page output stream. Generated code writes template text,
// expression results, and tag output through it; pushing a buffered body
// swaps the active Writer without touching call sites.
type Writer interface {
	io.Writer
	io.StringWriter
	io.ByteWriter
}

// AsWriter adapts an arbitrary io.Writer to the page Writer interface.
func AsWriter(w io.Writer) Writer {
	if pw, ok := w.(Writer); ok {
		return pw
	}
	return plainWriter{w}
}

type plainWriter struct {
	io.Writer
}

func (p plainWriter) WriteString(s string) (int, error) {
	return io.WriteString(p.Writer, s)
}

func (p plainWriter) WriteByte(c byte) error {
	_, err := p.Writer.Write([]byte{c})
	return err
}

// BodyContent buffers the output of a buffered tag body so the handler can
// read it back, re-evaluate it, or write it out to the enclosing stream.
type BodyContent struct {
	buf       strings.Builder
	enclosing Writer
}

func NewBodyContent(enclosing Writer) *BodyContent {
	return &BodyContent{enclosing: enclosing}
}

func (b *BodyContent) Write(p []byte) (int, error)  { return b.buf.Write(p) }
func (b *BodyContent) WriteString(s string) (int, error) { return b.buf.WriteString(s) }
func (b *BodyContent) WriteByte(c byte) error       { return b.buf.WriteByte(c) }

// String returns the buffered body text.
func (b *BodyContent) String() string { return b.buf.String() }

// Clear discards the buffered body, typically before re-evaluation.
func (b *BodyContent) Clear() { b.buf.Reset() }

// Enclosing returns the writer this body was pushed over.
func (b *BodyContent) Enclosing() Writer { return b.enclosing }

// WriteOut copies the buffered body to w.
func (b *BodyContent) WriteOut(w io.Writer) error {
	_, err := io.WriteString(w, b.buf.String())
	return err
}

// ResponseWriter buffers page output until the buffer fills or the page
// finishes, so an error handler can discard a half-written page. A zero
// buffer size writes through.
type ResponseWriter struct {
	dst       io.Writer
	buf       []byte
	size      int
	committed bool
}

func NewResponseWriter(dst io.Writer, bufferSize int) *ResponseWriter {
	return &ResponseWriter{dst: dst, size: bufferSize}
}

func (w *ResponseWriter) Write(p []byte) (int, error) {
	if w.size <= 0 {
		w.committed = true
		return w.dst.Write(p)
	}
	w.buf = append(w.buf, p...)
	if len(w.buf) >= w.size {
		if err := w.Flush(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (w *ResponseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *ResponseWriter) WriteByte(c byte) error {
	_, err := w.Write([]byte{c})
	return err
}

// Flush commits buffered output to the destination.
func (w *ResponseWriter) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	w.committed = true
	_, err := w.dst.Write(w.buf)
	w.buf = w.buf[:0]
	return err
}

// ClearBuffer discards uncommitted output. It fails once any output has
// reached the destination.
func (w *ResponseWriter) ClearBuffer() error {
	if w.committed {
		return ErrCommitted
	}
	w.buf = w.buf[:0]
	return nil
}

// Committed reports whether any output has reached the destination.
func (w *ResponseWriter) Committed() bool { return w.committed }

// BufferSize returns the configured buffer size.
func (w *ResponseWriter) BufferSize() int { return w.size }
