package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/local/bookletreorder/internal/batch"
	"github.com/local/bookletreorder/internal/document"
	"github.com/local/bookletreorder/internal/export"
	"github.com/local/bookletreorder/internal/source"
)

func newReorderCommand() *cobra.Command {
	var (
		outDir      string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "reorder file.pdf...",
		Short: "Reorder scanned booklets and write Sequential_<name> copies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine := batch.New(document.NewPDFModel(), batch.Options{Concurrency: concurrency})

			tw := newTable(cmd.OutOrStdout(), "File", "Pages", "Status", "Output")
			tw.SetColumnConfigs([]table.ColumnConfig{
				{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
			})
			notDone := 0
			for _, path := range args {
				ref, err := source.FromPath(path)
				if err == nil {
					_, err = engine.AddEntry(ctx, ref)
				}
				if err != nil {
					tw.AppendRow(table.Row{path, "-", "skipped", err.Error()})
					notDone++
				}
			}

			engine.ProcessAll(ctx)

			exported := map[string]string{}
			results, exportErr := export.New(engine, export.LocalSink{Dir: outDir}).All(ctx)
			for _, r := range results {
				if r.Error == "" {
					exported[r.EntryID] = r.Location
				}
			}

			for _, en := range engine.Entries() {
				detail := en.Error
				switch {
				case !en.Analysis.Valid:
					detail = en.Analysis.Error
				case en.Status == batch.StatusReady:
					detail = exported[en.ID]
				}
				if _, ok := exported[en.ID]; !ok {
					notDone++
				}
				tw.AppendRow(table.Row{en.Source.Name, en.Analysis.TotalPages, en.Status, detail})
			}
			tw.Render()

			if exportErr != nil {
				return exportErr
			}
			if notDone > 0 {
				return fmt.Errorf("%d of %d files were not reordered", notDone, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory for reordered files")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "Number of documents reordered at once")
	return cmd
}
