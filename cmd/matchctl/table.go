package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// renderDecisionTable lays out per-item outcomes. Numeric columns are
// right-aligned.
func renderDecisionTable(rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ITEM", "OUTCOME", "METHOD", "CATALOG ID", "SCORE", "STAGE"})
	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		tw.AppendRow(r)
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
	})
	return tw.Render()
}

// renderSummaryTable lays out the terminal run counters.
func renderSummaryTable(total, success, noMatch, errCount int) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"TOTAL", "SUCCESS", "NO MATCH", "ERRORS"})
	tw.AppendRow(table.Row{total, success, noMatch, errCount})
	return tw.Render()
}
