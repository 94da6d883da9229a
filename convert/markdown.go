package convert

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/siteforge/siteforge/models"
)

// MarkdownConverter renders the page content as Markdown. Unlike the
// builder formats it works per-section on the source HTML, since
// Markdown has no layout vocabulary to map rows and columns onto.
// The underlying converter is goroutine-safe and reused across jobs.
type MarkdownConverter struct {
	conv *converter.Converter
}

func NewMarkdownConverter() *MarkdownConverter {
	return &MarkdownConverter{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
	}
}

func (*MarkdownConverter) Format() string { return "markdown" }

func (c *MarkdownConverter) Convert(t *Tree) (*Output, error) {
	var b strings.Builder
	report := models.ConversionReport{TargetFormat: "markdown"}

	if t.Title != "" {
		b.WriteString("# " + t.Title + "\n\n")
		report.ElementsConverted++
	}

	for _, r := range t.Roots {
		n := &t.Nodes[r]
		md, err := c.conv.ConvertString(n.HTML)
		if err != nil {
			// Keep the section verbatim rather than losing it.
			report.FallbacksUsed++
			report.Warnings = append(report.Warnings, "section kept as raw HTML: "+err.Error())
			b.WriteString(n.HTML + "\n\n")
			continue
		}
		md = strings.TrimSpace(md)
		if md == "" {
			continue
		}
		b.WriteString(md + "\n\n")
		report.ElementsConverted++
	}

	return &Output{Content: strings.TrimRight(b.String(), "\n") + "\n", Report: report}, nil
}
