package check

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Output formats for a findings document.
const (
	FormatJSON     = "json"
	FormatMarkdown = "md"
	FormatHTML     = "html"
	FormatXLSX     = "xlsx"
)

// Formats lists the supported output formats.
var Formats = []string{FormatJSON, FormatMarkdown, FormatHTML, FormatXLSX}

// Render writes f to w in format.
func Render(w io.Writer, format string, f Findings) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		return RenderJSON(w, f)
	case FormatMarkdown, "markdown":
		return RenderMarkdown(w, f)
	case FormatHTML:
		return RenderHTML(w, f)
	case FormatXLSX:
		return RenderXLSX(w, f)
	default:
		return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

func RenderJSON(w io.Writer, f Findings) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}

func status(x Finding) string {
	switch {
	case x.Check == "note":
		return "NOTE"
	case x.Passed:
		return "PASS"
	default:
		return "FAIL"
	}
}

func mdCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

// RenderMarkdown writes a summary line, a findings table and the evidence of
// each failure.
func RenderMarkdown(w io.Writer, f Findings) error {
	var b strings.Builder
	failed := f.Failed()

	fmt.Fprintf(&b, "# %s\n\n", mdCell(f.Title))
	fmt.Fprintf(&b, "Generated %s. %d finding(s), %d failed.\n\n",
		f.GeneratedAt.UTC().Format("2006-01-02 15:04:05 MST"), len(f.Findings), len(failed))

	b.WriteString("| Status | Name | Check | Expected | Actual | Context |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, x := range f.Findings {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			status(x), mdCell(x.Name), mdCell(x.Check), mdCell(x.Expected), mdCell(x.Actual), mdCell(x.Context))
	}

	for _, x := range failed {
		if len(x.Evidence) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n", mdCell(x.Name))
		for _, e := range x.Evidence {
			fmt.Fprintf(&b, "- `%s`\n", strings.ReplaceAll(e, "`", "'"))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

func reportPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("h1", "h2", "h3", "p", "br", "ul", "ol", "li", "code", "pre", "strong", "em", "del")
	p.AllowElements("table", "thead", "tbody", "tr", "th", "td")
	p.AllowAttrs("align").Matching(bluemonday.SpaceSeparatedTokens).OnElements("th", "td")
	return p
}

// RenderHTML renders the Markdown form as a standalone, sanitised page.
func RenderHTML(w io.Writer, f Findings) error {
	var src bytes.Buffer
	if err := RenderMarkdown(&src, f); err != nil {
		return err
	}
	var body bytes.Buffer
	if err := markdown.Convert(src.Bytes(), &body); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}

	_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>body{font-family:sans-serif;margin:2em}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:4px 8px;vertical-align:top}</style>
</head>
<body>
%s</body>
</html>
`, html.EscapeString(f.Title), reportPolicy().SanitizeBytes(body.Bytes()))
	return err
}

// RenderXLSX writes one spreadsheet row per finding.
func RenderXLSX(w io.Writer, f Findings) error {
	const sheet = "Findings"

	x := excelize.NewFile()
	defer x.Close()

	if err := x.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	header := []interface{}{"Status", "Name", "Check", "Expected", "Actual", "Context", "Evidence", "At"}
	if err := x.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	bold, err := x.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := x.SetCellStyle(sheet, "A1", "H1", bold); err != nil {
		return err
	}

	for i, finding := range f.Findings {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			status(finding), finding.Name, finding.Check, finding.Expected, finding.Actual,
			finding.Context, strings.Join(finding.Evidence, "\n"), finding.At.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := x.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	if err := x.SetColWidth(sheet, "B", "F", 32); err != nil {
		return err
	}
	return x.Write(w)
}
