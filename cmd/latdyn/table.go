package main

import (
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"latdyn/internal/artifacts"
	"latdyn/internal/shengbte"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

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
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// renderKappaTable shows the diagonal and average conductivity per temperature.
func renderKappaTable(points []shengbte.KappaPoint) string {
	headers := []string{"T (K)", "kxx", "kyy", "kzz", "average"}
	aligns := []columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight}
	rows := make([][]string, 0, len(points))
	for _, p := range points {
		rows = append(rows, []string{
			artifacts.FormatTemperature(p.Temperature),
			formatKappa(p.Tensor[0][0]),
			formatKappa(p.Tensor[1][1]),
			formatKappa(p.Tensor[2][2]),
			formatKappa(p.Average()),
		})
	}
	return renderTable(headers, rows, aligns)
}

func formatKappa(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
