package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/local/bookletreorder/internal/booklet"
	"github.com/local/bookletreorder/internal/document"
)

func newAnalyzeCommand() *cobra.Command {
	var pages int

	cmd := &cobra.Command{
		Use:   "analyze [file.pdf...]",
		Short: "Show the page mapping for a page count or for PDF files",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				if !cmd.Flags().Changed("pages") {
					return errors.New("pass --pages or at least one file")
				}
				return printAnalysis(out, fmt.Sprintf("%d pages", pages), booklet.Analyze(pages))
			}

			model := document.NewPDFModel()
			var invalid []error
			for i, path := range args {
				if i > 0 {
					fmt.Fprintln(out)
				}
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				doc, err := model.Open(cmd.Context(), data)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				a := booklet.Analyze(doc.PageCount())
				if err := a.Err(); err != nil {
					invalid = append(invalid, fmt.Errorf("%s: %w", filepath.Base(path), err))
				}
				if err := printAnalysis(out, filepath.Base(path), a); err != nil {
					return err
				}
			}
			if len(invalid) > 0 {
				return fmt.Errorf("%d of %d files cannot be reordered: %w", len(invalid), len(args), errors.Join(invalid...))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&pages, "pages", "n", 0, "Analyze a page count instead of files")
	return cmd
}

func printAnalysis(w io.Writer, title string, a booklet.Analysis) error {
	if err := a.Err(); err != nil {
		fmt.Fprintf(w, "%s: %v\n", title, err)
		return nil
	}
	fmt.Fprintf(w, "%s: %d pages\n", title, a.TotalPages)
	tw := newTable(w, "Scan", "Reading order")
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	for _, m := range a.Mappings {
		tw.AppendRow(table.Row{"#" + strconv.Itoa(m.SourceIndex+1), "Page " + strconv.Itoa(m.TargetPage)})
	}
	tw.Render()
	return nil
}
