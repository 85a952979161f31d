package source

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DiffBlock is a fenced diff found in a markdown document.
type DiffBlock struct {
	// Hint is the paragraph right before the fence, often naming the file.
	Hint    string
	Lang    string
	Content string
}

// ExtractDiffBlocks returns the ```diff and ```patch fenced blocks of a markdown
// document, in document order. Fences of other languages are skipped.
func ExtractDiffBlocks(src []byte) ([]DiffBlock, error) {
	var blocks []DiffBlock
	root := goldmark.DefaultParser().Parse(text.NewReader(src))

	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fcb, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var lang string
		if fcb.Info != nil {
			if fields := strings.Fields(string(fcb.Info.Value(src))); len(fields) > 0 {
				lang = strings.ToLower(fields[0])
			}
		}
		if lang != "diff" && lang != "patch" && lang != "udiff" {
			return ast.WalkSkipChildren, nil
		}

		block := DiffBlock{Lang: lang, Content: segmentsText(src, fcb.Lines())}
		if prev := fcb.PreviousSibling(); prev != nil {
			if p, ok := prev.(*ast.Paragraph); ok {
				block.Hint = strings.TrimSpace(segmentsText(src, p.Lines()))
			}
		}
		blocks = append(blocks, block)
		return ast.WalkSkipChildren, nil
	}

	if err := ast.Walk(root, walker); err != nil {
		return nil, err
	}
	return blocks, nil
}

func segmentsText(src []byte, lines *text.Segments) string {
	var buf bytes.Buffer
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return buf.String()
}
