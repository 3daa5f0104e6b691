// Command gospc compiles a parsed template tree into a Go source file.
//
// The parser runs upstream and hands over the tree in its JSON exchange
// form; gospc resolves custom tags against YAML tag library descriptors,
// generates the page (or fragment unit) source, and optionally writes the
// line map artifact next to it.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"gosp/ast"
	"gosp/gen"
	"gosp/tagmeta"
	"gosp/trace"
)

func main() {
	astPath := flag.String("ast", "", "Template tree JSON file (required)")
	outPath := flag.String("o", "", "Output Go file (default stdout)")
	taglibDir := flag.String("taglib", "", "Directory of YAML tag library descriptors")
	pkgName := flag.String("package", "page", "Generated package name")
	pageName := flag.String("page", "Page", "Generated page struct name")
	sourcePath := flag.String("source", "", "Template path recorded in errors and the line map")
	errorPage := flag.String("error-page", "", "Dispatch target for render failures")
	bufSize := flag.Int("buffer", 0, "Response buffer size in bytes, 0 writes through")
	imports := flag.String("imports", "", "Comma-separated extra imports declared by the template")

	pooling := flag.Bool("pool", true, "Pool classic tag handlers")
	charArrays := flag.Bool("chararrays", false, "Emit large template text as shared byte slices")
	trimWS := flag.Bool("trim", false, "Drop whitespace-only template text")
	tagFile := flag.Bool("tagfile", false, "Generate a fragment unit instead of a page")
	tagFileLib := flag.String("tagfile-info", "", "YAML descriptor of the fragment unit's own tag entry")

	lineMapPath := flag.String("linemap", "", "Write the line map artifact to this file")

	traceEnabled := flag.Bool("trace", false, "Enable generation tracing")
	traceFilter := flag.String("trace-filter", "", "Trace filter patterns (glob, comma-separated)")

	flag.Parse()

	if *astPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if *traceEnabled {
		var filters []string
		if *traceFilter != "" {
			filters = strings.Split(*traceFilter, ",")
		}
		trace.Init(true, filters, os.Stderr)
	}

	data, err := os.ReadFile(*astPath)
	if err != nil {
		log.Fatalf("Failed to read template tree: %v", err)
	}
	root, err := ast.UnmarshalRoot(data)
	if err != nil {
		log.Fatalf("Failed to decode template tree: %v", err)
	}

	tags := tagmeta.NewRegistry()
	if *taglibDir != "" {
		tags, err = tagmeta.LoadDir(*taglibDir)
		if err != nil {
			log.Fatalf("Failed to load tag libraries: %v", err)
		}
	}

	opts := &gen.Options{
		PackageName:             *pkgName,
		PageName:                *pageName,
		SourcePath:              *sourcePath,
		ErrorPage:               *errorPage,
		BufferSize:              *bufSize,
		Pooling:                 *pooling,
		CharArrays:              *charArrays,
		TrimDirectiveWhitespace: *trimWS,
		GenLineMap:              *lineMapPath != "",
		Tags:                    tags,
		Trace:                   *traceEnabled,
		IsTagFile:               *tagFile,
	}
	if *sourcePath == "" {
		opts.SourcePath = *astPath
	}
	if *imports != "" {
		for _, imp := range strings.Split(*imports, ",") {
			if imp = strings.TrimSpace(imp); imp != "" {
				opts.Imports = append(opts.Imports, imp)
			}
		}
	}
	if *tagFileLib != "" {
		info, err := loadTagFileInfo(*tagFileLib)
		if err != nil {
			log.Fatalf("Failed to load fragment unit descriptor: %v", err)
		}
		opts.IsTagFile = true
		opts.TagFileInfo = info
	}

	res, err := gen.Generate(opts, root)
	if err != nil {
		log.Fatalf("Generation failed: %v", err)
	}

	if *outPath == "" {
		fmt.Print(res.Source)
	} else if err := os.WriteFile(*outPath, []byte(res.Source), 0o644); err != nil {
		log.Fatalf("Failed to write %s: %v", *outPath, err)
	}

	if *lineMapPath != "" {
		artifact, err := res.LineMap.Marshal()
		if err != nil {
			log.Fatalf("Failed to encode line map: %v", err)
		}
		if err := os.WriteFile(*lineMapPath, artifact, 0o644); err != nil {
			log.Fatalf("Failed to write %s: %v", *lineMapPath, err)
		}
	}
}

// loadTagFileInfo reads a one-tag library describing the fragment unit
// itself: its declared attributes and variables.
func loadTagFileInfo(path string) (*tagmeta.TagInfo, error) {
	lib, err := tagmeta.LoadLibrary(path)
	if err != nil {
		return nil, err
	}
	if len(lib.Tags) != 1 {
		return nil, fmt.Errorf("descriptor %q declares %d tags, expected exactly one", path, len(lib.Tags))
	}
	info := lib.Tags[0]
	info.Prefix = lib.Prefix
	return info, nil
}
