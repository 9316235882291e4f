package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hradmin/internal/domain/hierarchy"
)

func newTreeCmd() *cobra.Command {
	var pdfPath string

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the org chart, or render it to PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			roots, err := app.Hierarchy.BuildForest(cmd.Context())
			if err != nil {
				return err
			}
			if pdfPath == "" {
				return writeOutline(cmd.OutOrStdout(), roots)
			}

			f, err := os.Create(pdfPath)
			if err != nil {
				return err
			}
			if err := hierarchy.RenderPDF(f, roots, "Organization Chart", time.Now()); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVar(&pdfPath, "pdf", "", "Write the chart as PDF to this path")
	return cmd
}

func writeOutline(w io.Writer, roots []*hierarchy.Node) error {
	if len(roots) == 0 {
		_, err := fmt.Fprintln(w, "No employees")
		return err
	}
	var b strings.Builder
	for _, root := range roots {
		root.Walk(func(node *hierarchy.Node, depth int) {
			b.WriteString(strings.Repeat("  ", depth))
			fmt.Fprintf(&b, "%s (%s)", node.Name, node.ID)
			if node.Position != "" {
				fmt.Fprintf(&b, " - %s", node.Position)
			}
			b.WriteString("\n")
		})
	}
	_, err := io.WriteString(w, b.String())
	return err
}
