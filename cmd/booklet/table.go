package main

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// newTable returns a rounded table that renders to w.
func newTable(w io.Writer, header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row(header))
	return tw
}
