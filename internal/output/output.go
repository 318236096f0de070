// Package output renders command results as aligned tables or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))

type OutputFormat struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func JSON(w io.Writer, data any) error {
	return json.NewEncoder(w).Encode(OutputFormat{
		Status: "success",
		Data:   data,
	})
}

func JSONError(w io.Writer, err error) error {
	return json.NewEncoder(w).Encode(OutputFormat{
		Status:  "error",
		Message: err.Error(),
	})
}

func Error(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %s\n", err)
}

func Warning(w io.Writer, message string, args ...any) {
	fmt.Fprintf(w, "warning: "+message+"\n", args...)
}

// Table writes rows in aligned columns. The first row is the header; with
// styled set it is highlighted.
func Table(w io.Writer, rows [][]string, styled bool) {
	if len(rows) == 0 {
		return
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	for r, row := range rows {
		var line strings.Builder
		for i, cell := range row {
			if i == len(row)-1 {
				line.WriteString(cell)
			} else {
				line.WriteString(cell + strings.Repeat(" ", widths[i]-len(cell)+2))
			}
		}
		text := strings.TrimRight(line.String(), " ")
		if r == 0 && styled {
			text = headerStyle.Render(text)
		}
		fmt.Fprintln(w, text)
	}
}
