package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

const (
	sgrBold  = "\x1b[1m"
	sgrDim   = "\x1b[2m"
	sgrReset = "\x1b[0m"
)

// table prints aligned columns. Cells may carry SGR sequences; they are
// stripped when the output is not a terminal.
type table struct {
	rows  [][]string
	color bool
}

func newTable(w io.Writer, header ...string) *table {
	t := &table{}
	if f, ok := w.(*os.File); ok {
		t.color = term.IsTerminal(int(f.Fd()))
	}
	t.add(header...)
	return t
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func bold(s string) string { return sgrBold + s + sgrReset }
func dim(s string) string  { return sgrDim + s + sgrReset }

func (t *table) write(w io.Writer) error {
	var widths []int
	for _, row := range t.rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], ansi.StringWidth(cell))
		}
	}
	for _, row := range t.rows {
		var b strings.Builder
		for i, cell := range row {
			if !t.color {
				cell = ansi.Strip(cell)
			}
			b.WriteString(cell)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-ansi.StringWidth(cell)+2))
			}
		}
		if _, err := fmt.Fprintln(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}
