// Package formatter renders sync reports and exports collections to various formats (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/bcx/internal/models"
	"github.com/desertthunder/bcx/internal/shared"
	"github.com/desertthunder/bcx/internal/tasks"
)

// Format selects an export encoding.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
)

// ParseFormat accepts a format name or a file name whose extension names the format.
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if ext := filepath.Ext(name); ext != "" {
		name = strings.TrimPrefix(ext, ".")
	}
	switch name {
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, s)
}

const nothingRemovedWarning = "No listened albums matched the collection. Check that the snapshot was exported from the generated site."

// SyncReportText renders a sync result as an aligned plain-text table followed by totals.
func SyncReportText(res *tasks.SyncResult) []byte {
	var buf bytes.Buffer

	width := len("Genre")
	for _, g := range res.GenreNames() {
		width = max(width, len(g))
	}
	row := fmt.Sprintf("%%-%ds  %%8s  %%6s  %%6s  %%8s  %%6s\n", width)

	fmt.Fprintf(&buf, row, "Genre", "Original", "Kept", "Added", "Removed", "Total")
	for _, g := range res.GenreNames() {
		s := res.Genres[g]
		fmt.Fprintf(&buf, row, g, strconv.Itoa(s.Original), strconv.Itoa(s.Kept), strconv.Itoa(s.Added), strconv.Itoa(s.Removed), strconv.Itoa(s.Total))
	}
	t := res.Totals
	fmt.Fprintf(&buf, row, "TOTAL", strconv.Itoa(t.Original), strconv.Itoa(t.Kept), strconv.Itoa(t.Added), strconv.Itoa(t.Removed), strconv.Itoa(t.Total))
	buf.WriteString("\n")

	for _, g := range res.GenreNames() {
		if keys := res.Genres[g].Keys; len(keys) > 0 {
			fmt.Fprintf(&buf, "%s <- %s\n", g, strings.Join(keys, ", "))
		}
	}
	writeNotes(&buf, res, "")

	if res.NothingRemoved() {
		buf.WriteString("\nWarning: " + nothingRemovedWarning + "\n")
	}
	return buf.Bytes()
}

// SyncReportMarkdown renders a sync result as a Markdown table.
func SyncReportMarkdown(res *tasks.SyncResult) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Sync Report\n\n")
	buf.WriteString("| Genre | Original | Kept | Added | Removed | Total |\n")
	buf.WriteString("|---|---:|---:|---:|---:|---:|\n")
	for _, g := range res.GenreNames() {
		s := res.Genres[g]
		fmt.Fprintf(&buf, "| %s | %d | %d | %d | %d | %d |\n", escapeCell(g), s.Original, s.Kept, s.Added, s.Removed, s.Total)
	}
	t := res.Totals
	fmt.Fprintf(&buf, "| **Total** | %d | %d | %d | %d | %d |\n\n", t.Original, t.Kept, t.Added, t.Removed, t.Total)

	var matched []string
	for _, g := range res.GenreNames() {
		for _, k := range res.Genres[g].Keys {
			matched = append(matched, fmt.Sprintf("- `%s` -> %s", k, g))
		}
	}
	if len(matched) > 0 {
		buf.WriteString("## Matched Keys\n\n")
		buf.WriteString(strings.Join(matched, "\n") + "\n\n")
	}
	writeNotes(&buf, res, "- ")

	if res.NothingRemoved() {
		buf.WriteString("\n> **Warning**: " + nothingRemovedWarning + "\n")
	}
	return buf.Bytes()
}

// SyncReportJSON encodes the result statistics; the collection itself is omitted.
func SyncReportJSON(res *tasks.SyncResult) ([]byte, error) {
	return shared.MarshalJSON(res, true)
}

func writeNotes(buf *bytes.Buffer, res *tasks.SyncResult, bullet string) {
	var notes []string
	if len(res.Unmatched) > 0 {
		notes = append(notes, fmt.Sprintf("Unmatched snapshot keys: %s", strings.Join(res.Unmatched, ", ")))
	}
	t := res.Totals
	if t.Duplicates > 0 {
		notes = append(notes, fmt.Sprintf("Duplicates collapsed: %d", t.Duplicates))
	}
	if t.Unidentified > 0 {
		notes = append(notes, fmt.Sprintf("Records without an identifier kept: %d", t.Unidentified))
	}
	if t.Suppressed > 0 {
		notes = append(notes, fmt.Sprintf("Fresh records already listened: %d", t.Suppressed))
	}
	if t.Skipped > 0 {
		notes = append(notes, fmt.Sprintf("Fresh records skipped: %d", t.Skipped))
	}
	if !res.FreshProvided {
		notes = append(notes, "No fresh records: removal only")
	}
	for _, n := range notes {
		buf.WriteString(bullet + n + "\n")
	}
}


func escapeCell(s string) string { return strings.ReplaceAll(s, "|", `\|`) }

// ExportToCSV writes one row per record with columns: Genre, ID, Subject, Date, URL, Sender, Folder
func ExportToCSV(c models.Collection) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Genre", "ID", "Subject", "Date", "URL", "Sender", "Folder"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, genre := range c.Genres() {
		for _, a := range c[genre] {
			id, _ := a.Identifier()
			record := []string{genre, id, a.Subject, a.Date, a.URL, a.Sender, a.Folder}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportToMarkdown lists each genre as a section of linked releases.
func ExportToMarkdown(c models.Collection, title string) ([]byte, error) {
	var buf bytes.Buffer

	if title == "" {
		title = "Bandcamp Collection"
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)
	fmt.Fprintf(&buf, "**Releases**: %d\n", c.Total())
	fmt.Fprintf(&buf, "**Genres**: %d\n\n", len(c))

	for _, genre := range c.Genres() {
		fmt.Fprintf(&buf, "## %s (%d)\n\n", genre, len(c[genre]))
		for i, a := range c[genre] {
			datePart := ""
			if a.Date != "" {
				datePart = fmt.Sprintf(" (%s)", a.Date)
			}
			fmt.Fprintf(&buf, "%d. [%s](%s)%s\n", i+1, subjectOrURL(a), a.URL, datePart)
		}
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// ExportToText converts a collection to plain text format
func ExportToText(c models.Collection) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Releases: %d\n", c.Total())
	for _, genre := range c.Genres() {
		fmt.Fprintf(&buf, "\n%s (%d)\n", genre, len(c[genre]))
		for i, a := range c[genre] {
			fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, subjectOrURL(a), a.URL)
		}
	}
	return buf.Bytes(), nil
}

func subjectOrURL(a models.Album) string {
	if a.Subject != "" {
		return a.Subject
	}
	return a.URL
}

// Export encodes c in the given format.
func Export(c models.Collection, format Format, title string) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(c)
	case FormatMarkdown:
		return ExportToMarkdown(c, title)
	case FormatText:
		return ExportToText(c)
	case FormatJSON:
		return shared.MarshalJSON(c, true)
	}
	return nil, fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, format)
}

// WriteExport writes c to path in the format implied by its extension unless format is set.
func WriteExport(c models.Collection, path string, format Format, title string) (Format, error) {
	if format == "" {
		f, err := ParseFormat(path)
		if err != nil {
			return "", err
		}
		format = f
	}

	data, err := Export(c, format, title)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}
	if err := shared.WriteFileAtomic(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return format, nil
}
