package export

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const (
	pdfMargin     = 12.0
	pdfLineHeight = 5.0
	pdfBodySize   = 10.0
)

// markdownPDF parses markdown and renders it into an A4 PDF document.
func markdownPDF(markdown string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", pdfBodySize)

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	w := &pdfWriter{
		pdf:       pdf,
		source:    source,
		translate: pdf.UnicodeTranslatorFromDescriptor(""),
	}
	if err := ast.Walk(doc, w.walk); err != nil {
		return nil, fmt.Errorf("failed to render transcript PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write transcript PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// pdfWriter walks the markdown AST and draws it with fpdf. Inline style is
// tracked as bold/italic flags; block nodes manage their own spacing.
type pdfWriter struct {
	pdf       *fpdf.Fpdf
	source    []byte
	translate func(string) string

	bold       bool
	italic     bool
	quoteDepth int
	lists      []listState
}

type listState struct {
	ordered bool
	next    int
}

func (w *pdfWriter) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		w.heading(node, entering)
	case *ast.Paragraph:
		if !entering {
			w.pdf.Ln(7)
		}
	case *ast.Text:
		if entering {
			w.pdf.Write(pdfLineHeight, w.translate(string(node.Text(w.source))))
		}
	case *ast.AutoLink:
		if entering {
			w.pdf.Write(pdfLineHeight, w.translate(string(node.URL(w.source))))
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			w.bold = entering
		} else {
			w.italic = entering
		}
		w.applyFont()
	case *ast.CodeSpan:
		return w.codeSpan(node, entering), nil
	case *ast.FencedCodeBlock:
		if entering {
			w.codeBlock(node.Lines())
			return ast.WalkSkipChildren, nil
		}
	case *ast.CodeBlock:
		if entering {
			w.codeBlock(node.Lines())
			return ast.WalkSkipChildren, nil
		}
	case *ast.List:
		w.list(node, entering)
	case *ast.ListItem:
		if entering {
			w.listItem()
		}
	case *ast.Blockquote:
		w.blockquote(entering)
	case *ast.ThematicBreak:
		if entering {
			w.pdf.Ln(3)
			w.pdf.Line(pdfMargin, w.pdf.GetY(), 210-pdfMargin, w.pdf.GetY())
			w.pdf.Ln(3)
		}
	case *extast.Table:
		if entering {
			w.table(node)
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

func (w *pdfWriter) applyFont() {
	style := ""
	if w.bold {
		style += "B"
	}
	if w.italic {
		style += "I"
	}
	w.pdf.SetFont("Helvetica", style, pdfBodySize)
	if w.quoteDepth > 0 {
		w.pdf.SetTextColor(102, 102, 102)
	} else {
		w.pdf.SetTextColor(0, 0, 0)
	}
}

func (w *pdfWriter) heading(n *ast.Heading, entering bool) {
	if entering {
		w.pdf.Ln(5)
		size := 15.0 - 1.5*float64(n.Level-1)
		if size < 10 {
			size = 10
		}
		w.pdf.SetFont("Helvetica", "B", size)
		return
	}
	w.pdf.Ln(7)
	w.applyFont()
}

func (w *pdfWriter) codeSpan(n *ast.CodeSpan, entering bool) ast.WalkStatus {
	if !entering {
		w.applyFont()
		return ast.WalkContinue
	}
	w.pdf.SetFont("Courier", "", pdfBodySize)
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if textNode, ok := c.(*ast.Text); ok {
			w.pdf.Write(pdfLineHeight, w.translate(string(textNode.Segment.Value(w.source))))
		}
	}
	return ast.WalkSkipChildren
}

func (w *pdfWriter) codeBlock(lines *text.Segments) {
	w.pdf.Ln(2)
	w.pdf.SetFont("Courier", "", 9)
	w.pdf.SetFillColor(245, 245, 245)

	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		w.pdf.MultiCell(0, pdfLineHeight, w.translate(string(segment.Value(w.source))), "", "L", true)
	}

	w.pdf.SetFillColor(255, 255, 255)
	w.applyFont()
	w.pdf.Ln(2)
}

func (w *pdfWriter) list(n *ast.List, entering bool) {
	if entering {
		w.lists = append(w.lists, listState{ordered: n.IsOrdered(), next: n.Start})
		return
	}
	w.lists = w.lists[:len(w.lists)-1]
	if len(w.lists) == 0 {
		w.pdf.Ln(5)
	}
}

func (w *pdfWriter) listItem() {
	w.pdf.Ln(pdfLineHeight)
	indent := float64(len(w.lists)-1) * 5.0
	w.pdf.SetX(pdfMargin + 3 + indent)

	state := &w.lists[len(w.lists)-1]
	if state.ordered {
		w.pdf.Write(pdfLineHeight, fmt.Sprintf("%d. ", state.next))
		state.next++
	} else {
		w.pdf.Write(pdfLineHeight, "- ")
	}
}

func (w *pdfWriter) blockquote(entering bool) {
	if entering {
		w.quoteDepth++
	} else {
		w.quoteDepth--
	}
	w.pdf.SetLeftMargin(pdfMargin + 6*float64(w.quoteDepth))
	w.applyFont()
}

// table draws every row with equal column widths. Header cells render bold
// on a gray fill.
func (w *pdfWriter) table(n *extast.Table) {
	var rows [][]string

	var collect func(node ast.Node)
	collect = func(node ast.Node) {
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			switch row := child.(type) {
			case *extast.TableRow:
				rows = append(rows, w.cells(row))
			case *extast.TableHeader:
				if cells := w.cells(row); len(cells) > 0 {
					rows = append(rows, cells)
				} else {
					collect(row)
				}
			}
		}
	}
	collect(n)

	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	cols := len(rows[0])
	width := (210 - 2*pdfMargin) / float64(cols)

	w.pdf.Ln(2)
	for i, row := range rows {
		if i == 0 {
			w.pdf.SetFont("Helvetica", "B", 8)
			w.pdf.SetFillColor(230, 230, 230)
		} else {
			w.pdf.SetFont("Helvetica", "", 8)
			w.pdf.SetFillColor(255, 255, 255)
		}
		for j := 0; j < cols; j++ {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			w.pdf.CellFormat(width, 6, w.translate(cell), "1", 0, "L", i == 0, 0, "")
		}
		w.pdf.Ln(6)
	}
	w.pdf.Ln(2)
	w.applyFont()
}

// cells extracts the text of each TableCell child, returning nil when the
// node holds no cells directly.
func (w *pdfWriter) cells(n ast.Node) []string {
	var out []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if cell, ok := c.(*extast.TableCell); ok {
			out = append(out, string(cell.Text(w.source)))
		}
	}
	return out
}
