package gen

import "gosp/tagmeta"

// Options steer one generation run.
type Options struct {
	// PackageName and PageName name the generated package and page struct.
	PackageName string
	PageName    string

	// SourcePath is the template path recorded in positions and the line
	// map artifact.
	SourcePath string

	// ErrorPage, when set, is where render failures are dispatched.
	ErrorPage string

	// BufferSize for the page's response writer; zero writes through.
	BufferSize int

	// Pooling enables handler pools for classic tags. IDConsumer tags are
	// never pooled regardless.
	Pooling bool

	// CharArrays emits large template text as package-level byte slices
	// shared between identical chunks instead of inline string literals.
	CharArrays bool

	// TrimDirectiveWhitespace drops template text nodes that contain only
	// whitespace.
	TrimDirectiveWhitespace bool

	// GenLineMap collects template-to-generated line correspondences and
	// attaches them to the result.
	GenLineMap bool

	// Tags resolves custom-tag metadata. A nil registry makes every custom
	// tag a static error.
	Tags *tagmeta.Registry

	// Plugins rewrite well-known tags into inline code instead of handler
	// calls.
	Plugins map[string]TagPlugin

	// Trace enables per-node generation tracing.
	Trace bool

	// IsTagFile generates a fragment unit (a reusable tag body) instead of
	// a page.
	IsTagFile bool

	// TagFileInfo describes the unit's own attributes and variables when
	// IsTagFile is set.
	TagFileInfo *tagmeta.TagInfo

	// Imports are extra packages the template declared; discovered imports
	// are merged in during generation.
	Imports []string

	// Prolog is written before any template output: an XML declaration
	// and doctype when the page metadata asks for them.
	Prolog string

	// Dependencies maps the template's source dependencies (includes, tag
	// files) to their modification times; the generated page exposes them
	// for staleness checks.
	Dependencies map[string]int64
}

func (o *Options) pageStructName() string {
	if o.PageName != "" {
		return o.PageName
	}
	return "Page"
}

func (o *Options) packageName() string {
	if o.PackageName != "" {
		return o.PackageName
	}
	return "page"
}
