// Package cmd holds the gpionode subcommands.
package cmd

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/smazurov/gpionode/internal/logging"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// renderTable writes rows under headers as a bordered table.
func renderTable(w io.Writer, headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	_, err := io.WriteString(w, t.String()+"\n")
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// commandLogger sets up warn-level logging for one-shot commands so their
// output stays readable.
func commandLogger(module string, verbose bool) *slog.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	logging.Initialize(logging.Config{Level: level, Format: "text"})
	return logging.GetLogger(module)
}
