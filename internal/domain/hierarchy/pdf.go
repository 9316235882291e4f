package hierarchy

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jung-kurt/gofpdf"
)

const pdfIndentMM = 6

// RenderPDF writes each tree in roots as an indented outline. With no
// employees the document says so instead of failing.
func RenderPDF(w io.Writer, roots []*Node, title string, generatedAt time.Time) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, tr(title))
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s", generatedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(10)

	count := 0
	for _, root := range roots {
		if root == nil {
			continue
		}
		root.Walk(func(node *Node, depth int) {
			count++
			pdf.SetX(pdf.GetX() + float64(depth*pdfIndentMM))
			pdf.SetFont("Helvetica", "B", 11)
			pdf.Cell(0, 7, tr(nodeLine(node)))
			pdf.Ln(5)
			if detail := nodeDetail(node); detail != "" {
				pdf.SetX(pdf.GetX() + float64(depth*pdfIndentMM))
				pdf.SetFont("Helvetica", "", 9)
				pdf.Cell(0, 5, tr(detail))
				pdf.Ln(6)
			}
		})
		pdf.Ln(4)
	}
	if count == 0 {
		pdf.SetFont("Helvetica", "I", 11)
		pdf.Cell(0, 8, "No employees")
	}

	if err := pdf.Output(w); err != nil {
		return errors.Wrap(err, "render org chart pdf")
	}
	return nil
}

func nodeLine(node *Node) string {
	return fmt.Sprintf("%s  (%s)", node.Name, node.ID)
}

func nodeDetail(node *Node) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{node.Position, node.Department, string(node.Role)} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " | ")
}
