package main

import (
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// historyTable renders history lines, oldest first, numbered from 1.
// Only the last limit lines are shown when limit is positive.
func historyTable(w io.Writer, lines []string, limit int) error {
	first := 0
	if limit > 0 && len(lines) > limit {
		first = len(lines) - limit
	}
	table := tablewriter.NewWriter(w)
	table.Header([]string{"#", "Statement"})
	for i, line := range lines[first:] {
		if err := table.Append([]string{strconv.Itoa(first + i + 1), displayLine(line)}); err != nil {
			return err
		}
	}
	return table.Render()
}

// displayLine folds a multi-line statement onto one table row.
func displayLine(line string) string {
	line = strings.ReplaceAll(line, "\t", "    ")
	return strings.ReplaceAll(line, "\n", " ⏎ ")
}
