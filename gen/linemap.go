package gen

import (
	"sort"

	"github.com/goccy/go-json"

	"gosp/ast"
)

// LineMapping pairs one template line with the generated lines it produced.
type LineMapping struct {
	SrcLine  int `json:"src"`
	GenBegin int `json:"begin"`
	GenEnd   int `json:"end"`
}

// LineMap records which generated lines came from which template lines, so
// a runtime failure in generated source can be reported against the
// template.
type LineMap struct {
	Source   string        `json:"source"`
	Mappings []LineMapping `json:"mappings"`
}

// collectLineMap harvests the line stamps the traversal left on the tree.
// Every stamped node contributes a mapping; multi-line text contributes one
// mapping per source line it spanned.
func collectLineMap(root *ast.Root, source string) *LineMap {
	lm := &LineMap{Source: source}
	ast.Walk(root, func(n ast.Node) bool {
		begin, end := n.GenRange()
		if begin <= 0 {
			return true
		}
		lm.Mappings = append(lm.Mappings, LineMapping{
			SrcLine:  n.Position().Line,
			GenBegin: begin,
			GenEnd:   end,
		})
		if tt, ok := n.(*ast.TemplateText); ok {
			for _, e := range tt.Smap {
				lm.Mappings = append(lm.Mappings, LineMapping{
					SrcLine:  tt.Position().Line + e.SrcOffset,
					GenBegin: e.GenLine,
					GenEnd:   e.GenLine,
				})
			}
		}
		return true
	})
	sort.SliceStable(lm.Mappings, func(i, j int) bool {
		if lm.Mappings[i].GenBegin != lm.Mappings[j].GenBegin {
			return lm.Mappings[i].GenBegin < lm.Mappings[j].GenBegin
		}
		return lm.Mappings[i].SrcLine < lm.Mappings[j].SrcLine
	})
	return lm
}

// GenLine returns the first generated line mapped from the given template
// line, or zero.
func (lm *LineMap) GenLine(srcLine int) int {
	for _, m := range lm.Mappings {
		if m.SrcLine == srcLine {
			return m.GenBegin
		}
	}
	return 0
}

// SrcLine returns the template line a generated line came from, or zero.
func (lm *LineMap) SrcLine(genLine int) int {
	for _, m := range lm.Mappings {
		if genLine >= m.GenBegin && genLine <= m.GenEnd {
			return m.SrcLine
		}
	}
	return 0
}

// Marshal renders the map as an artifact written next to the generated
// source.
func (lm *LineMap) Marshal() ([]byte, error) {
	return json.MarshalIndent(lm, "", "  ")
}

// UnmarshalLineMap reads a line map artifact back.
func UnmarshalLineMap(data []byte) (*LineMap, error) {
	var lm LineMap
	if err := json.Unmarshal(data, &lm); err != nil {
		return nil, err
	}
	return &lm, nil
}
