package convert

import (
	"fmt"
	"html"
	"strings"

	"github.com/siteforge/siteforge/models"
)

// GutenbergConverter serializes the layout tree as WordPress block
// markup: HTML bracketed by block delimiter comments, nested the way
// the block editor nests groups and columns.
type GutenbergConverter struct{}

func NewGutenbergConverter() *GutenbergConverter { return &GutenbergConverter{} }

func (*GutenbergConverter) Format() string { return "gutenberg" }

func (c *GutenbergConverter) Convert(t *Tree) (*Output, error) {
	run := &gutenbergRun{tree: t}
	var b strings.Builder
	for _, r := range t.Roots {
		b.WriteString(run.node(r))
	}
	return &Output{
		Content: b.String(),
		Report: models.ConversionReport{
			TargetFormat:      "gutenberg",
			ElementsConverted: run.converted,
			FallbacksUsed:     run.fallbacks,
			Warnings:          run.warnings,
		},
	}, nil
}

type gutenbergRun struct {
	tree      *Tree
	converted int
	fallbacks int
	warnings  []string
}

// node converts one subtree, substituting a raw-HTML block when the
// subtree has no block equivalent.
func (r *gutenbergRun) node(id int) string {
	n := &r.tree.Nodes[id]
	out, err := r.emit(id, n)
	if err != nil {
		r.fallbacks++
		r.warnings = append(r.warnings, fmt.Sprintf("%v: kept as raw HTML", err))
		return "<!-- wp:html -->\n" + n.HTML + "\n<!-- /wp:html -->\n"
	}
	return out
}

func (r *gutenbergRun) emit(id int, n *Node) (string, error) {
	switch n.Kind {
	case KindSection:
		return r.group(n, "section"), nil
	case KindRow:
		if countKind(r.tree, n.Children, KindColumn) >= 2 {
			return r.columns(n), nil
		}
		return r.group(n, "div"), nil
	case KindColumn:
		return r.group(n, "div"), nil
	default:
		out, err := r.leaf(n)
		if err == nil {
			r.converted++
		}
		return out, err
	}
}

func (r *gutenbergRun) group(n *Node, tag string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<!-- wp:group {\"tagName\":\"%s\"} -->\n<%s class=\"wp-block-group\">\n", tag, tag)
	for _, c := range n.Children {
		b.WriteString(r.node(c))
	}
	fmt.Fprintf(&b, "</%s>\n<!-- /wp:group -->\n", tag)
	r.converted++
	return b.String()
}

func (r *gutenbergRun) columns(n *Node) string {
	var b strings.Builder
	b.WriteString("<!-- wp:columns -->\n<div class=\"wp-block-columns\">\n")
	for _, c := range n.Children {
		b.WriteString("<!-- wp:column -->\n<div class=\"wp-block-column\">\n")
		child := &r.tree.Nodes[c]
		if child.Kind == KindColumn {
			// The column wrapper above already stands in for this node.
			for _, cc := range child.Children {
				b.WriteString(r.node(cc))
			}
		} else {
			b.WriteString(r.node(c))
		}
		b.WriteString("</div>\n<!-- /wp:column -->\n")
		r.converted++
	}
	b.WriteString("</div>\n<!-- /wp:columns -->\n")
	r.converted++
	return b.String()
}

func (r *gutenbergRun) leaf(n *Node) (string, error) {
	switch n.Tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := n.Tag[1] - '0'
		return fmt.Sprintf("<!-- wp:heading {\"level\":%d} -->\n<%s class=\"wp-block-heading\">%s</%s>\n<!-- /wp:heading -->\n",
			level, n.Tag, html.EscapeString(n.Text), n.Tag), nil
	case "p", "span":
		return fmt.Sprintf("<!-- wp:paragraph -->\n<p>%s</p>\n<!-- /wp:paragraph -->\n",
			html.EscapeString(n.Text)), nil
	case "img", "picture":
		src := n.Attrs["src"]
		alt := n.Attrs["alt"]
		return fmt.Sprintf("<!-- wp:image -->\n<figure class=\"wp-block-image\"><img src=%q alt=%q/></figure>\n<!-- /wp:image -->\n",
			src, alt), nil
	case "ul", "ol":
		ordered := ""
		if n.Tag == "ol" {
			ordered = " {\"ordered\":true}"
		}
		return fmt.Sprintf("<!-- wp:list%s -->\n%s\n<!-- /wp:list -->\n", ordered, n.HTML), nil
	case "blockquote":
		return fmt.Sprintf("<!-- wp:quote -->\n%s\n<!-- /wp:quote -->\n", n.HTML), nil
	case "pre":
		return fmt.Sprintf("<!-- wp:code -->\n<pre class=\"wp-block-code\"><code>%s</code></pre>\n<!-- /wp:code -->\n",
			html.EscapeString(n.Text)), nil
	case "table":
		return fmt.Sprintf("<!-- wp:table -->\n<figure class=\"wp-block-table\">%s</figure>\n<!-- /wp:table -->\n", n.HTML), nil
	case "a", "button":
		href := n.Attrs["href"]
		return fmt.Sprintf("<!-- wp:buttons -->\n<div class=\"wp-block-buttons\"><!-- wp:button -->\n<div class=\"wp-block-button\"><a class=\"wp-block-button__link\" href=%q>%s</a></div>\n<!-- /wp:button --></div>\n<!-- /wp:buttons -->\n",
			href, html.EscapeString(n.Text)), nil
	case "video":
		return fmt.Sprintf("<!-- wp:video -->\n<figure class=\"wp-block-video\"><video controls src=%q></video></figure>\n<!-- /wp:video -->\n",
			n.Attrs["src"]), nil
	case "hr":
		return "<!-- wp:separator -->\n<hr class=\"wp-block-separator\"/>\n<!-- /wp:separator -->\n", nil
	default:
		return "", errUnsupported{tag: n.Tag}
	}
}

func countKind(t *Tree, ids []int, kind NodeKind) int {
	n := 0
	for _, id := range ids {
		if t.Nodes[id].Kind == kind {
			n++
		}
	}
	return n
}
