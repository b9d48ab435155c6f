package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"dlst-go/internal/dlst"
	"dlst-go/internal/keyring"
)

func newTableWriter() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	return tw
}

// entryTable renders a container listing, sizes right-aligned.
func entryTable(entries []*dlst.Entry) string {
	tw := newTableWriter()
	tw.AppendHeader(table.Row{"Name", "Size"})
	for _, e := range entries {
		tw.AppendRow(table.Row{e.Name, strconv.FormatInt(e.Size, 10)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

// keyTable renders the stored keyring records.
func keyTable(records []*keyring.Record) string {
	tw := newTableWriter()
	tw.AppendHeader(table.Row{"Work", "Label", "Added"})
	for _, rec := range records {
		tw.AppendRow(table.Row{rec.WorkID, rec.Label, rec.CreatedAt.Format("2006-01-02 15:04:05")})
	}
	return tw.Render()
}
