package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// printer renders command results as tables, plain lines or JSON.
type printer struct {
	stdout io.Writer
	stderr io.Writer
	json   bool
	quiet  bool
}

// result writes v as JSON in --json mode, otherwise calls human.
func (p *printer) result(v any, human func(w io.Writer)) error {
	if p.json {
		enc := json.NewEncoder(p.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	if !p.quiet {
		human(p.stdout)
	}
	return nil
}

// table writes rows with go-pretty, or as a list of objects in --json mode.
func (p *printer) table(headers []string, rows [][]string, aligns []columnAlignment) error {
	if p.json {
		objs := make([]map[string]string, len(rows))
		for i, row := range rows {
			m := make(map[string]string, len(headers))
			for j, h := range headers {
				if j < len(row) {
					m[h] = row[j]
				}
			}
			objs[i] = m
		}
		return p.result(objs, nil)
	}
	if p.quiet {
		return nil
	}
	fmt.Fprintln(p.stdout, renderTable(headers, rows, aligns, isTerminal(p.stdout)))
	return nil
}

// infof prints a progress or status line unless --quiet or --json is set.
func (p *printer) infof(format string, args ...any) {
	if p.quiet || p.json {
		return
	}
	fmt.Fprintf(p.stdout, format, args...)
}

// warnf prints to stderr unless --quiet is set.
func (p *printer) warnf(format string, args ...any) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.stderr, format, args...)
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment, terminal bool) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	if terminal {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleLight)
	}

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			WidthMax:    60,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
