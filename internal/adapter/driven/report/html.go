package report

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/ericfisherdev/prcompliance/internal/domain/model"
	"github.com/ericfisherdev/prcompliance/internal/domain/port/driven"
)

var _ driven.ReportWriter = (*HTMLWriter)(nil)

var (
	mdRenderer    goldmark.Markdown
	htmlSanitizer *bluemonday.Policy
)

func init() {
	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)

	htmlSanitizer = bluemonday.UGCPolicy()
}

// HTMLWriter renders the report as a Markdown document (summary plus a GFM
// table) and writes it as sanitized HTML.
type HTMLWriter struct {
	path string
}

// NewHTMLWriter creates an HTMLWriter that writes under outputDir.
func NewHTMLWriter(outputDir string) *HTMLWriter {
	return &HTMLWriter{path: filepath.Join(outputDir, HTMLReportPath)}
}

func (w *HTMLWriter) Name() string { return "html" }

// Path returns the file the writer produces.
func (w *HTMLWriter) Path() string { return w.path }

func (w *HTMLWriter) Write(_ context.Context, report model.Report) error {
	body, err := RenderMarkdown(reportMarkdown(report))
	if err != nil {
		return err
	}

	title := html.EscapeString("Merged PR compliance: " + report.RepoFullName)

	var doc bytes.Buffer
	fmt.Fprintf(&doc, "<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", title)
	doc.WriteString(body)
	doc.WriteString("</body>\n</html>\n")

	return writeFile(w.path, doc.Bytes())
}

// RenderMarkdown converts a markdown string to sanitized HTML.
func RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}

	return htmlSanitizer.Sanitize(buf.String()), nil
}

func reportMarkdown(report model.Report) string {
	summary := report.Summary()

	var b strings.Builder
	fmt.Fprintf(&b, "# Merged PR compliance: %s\n\n", escapeMarkdown(report.RepoFullName))
	fmt.Fprintf(&b, "Generated %s (run `%s`)", report.GeneratedAt.UTC().Format(MergeDateLayout), report.ID)
	if since := report.Range.Since; since != nil {
		fmt.Fprintf(&b, ", merged since %s", since.UTC().Format(MergeDateLayout))
	}
	if until := report.Range.Until; until != nil {
		fmt.Fprintf(&b, ", merged before %s", until.UTC().Format(MergeDateLayout))
	}
	b.WriteString("\n\n")

	b.WriteString("| Merged PRs | Approved | Checks passed | Compliant | Unknown |\n")
	b.WriteString("|---:|---:|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d |\n\n",
		summary.Total, summary.Approved, summary.ChecksPassed, summary.Compliant, summary.Unknown)

	if len(report.Records) == 0 {
		b.WriteString("No merged pull requests.\n")
		return b.String()
	}

	b.WriteString("| PR | Title | Author | Merged | Head | Approved | Checks |\n")
	b.WriteString("|---:|---|---|---|---|---|---|\n")
	for _, rec := range report.Records {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | `%s` | %s | %s |\n",
			rec.Number,
			escapeMarkdown(rec.Title),
			escapeMarkdown(rec.Author),
			formatMergeDate(rec),
			model.ShortSHA(rec.HeadSHA),
			rec.Approval,
			rec.Checks,
		)
	}

	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"|", `\|`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
	">", `\>`,
	"#", `\#`,
	"\r", " ",
	"\n", " ",
)

// escapeMarkdown makes untrusted text render literally inside a table cell.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
