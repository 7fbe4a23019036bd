package logger

import (
	"fmt"
	"io"
	"strings"
)

type Table struct {
	headers []string
	rows    [][]string
	widths  []int
	out     io.Writer
}

func NewTable(headers []string, out io.Writer) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runeLen(h)
	}

	return &Table{
		headers: headers,
		widths:  widths,
		out:     out,
	}
}

// AddRow appends a row, truncating or padding it to the header count.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)

	for i, cell := range row {
		if n := runeLen(cell); n > t.widths[i] {
			t.widths[i] = n
		}
	}

	t.rows = append(t.rows, row)
}

func (t *Table) rule(left, mid, right string) string {
	parts := make([]string, len(t.widths))
	for i, w := range t.widths {
		parts[i] = strings.Repeat("─", w+2)
	}
	return left + strings.Join(parts, mid) + right
}

func (t *Table) line(cells []string) string {
	var b strings.Builder
	b.WriteString("│")
	for i, cell := range cells {
		b.WriteString(" ")
		b.WriteString(cell)
		b.WriteString(strings.Repeat(" ", t.widths[i]-runeLen(cell)))
		b.WriteString(" │")
	}
	return b.String()
}

func (t *Table) Print() {
	var b strings.Builder

	b.WriteString(t.rule("┌", "┬", "┐") + "\n")
	b.WriteString(t.line(t.headers) + "\n")
	b.WriteString(t.rule("├", "┼", "┤") + "\n")
	for _, row := range t.rows {
		b.WriteString(t.line(row) + "\n")
	}
	b.WriteString(t.rule("└", "┴", "┘"))

	fmt.Fprintln(t.out, b.String())
}
