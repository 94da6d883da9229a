package convert

import (
	"fmt"
	"strings"

	"github.com/siteforge/siteforge/models"
)

// ShortcodeConverter serializes the layout tree in the bracketed
// shortcode dialect classic page builders consume. Layout nodes map
// onto [section]/[row]/[col]; leaves onto content shortcodes.
type ShortcodeConverter struct{}

func NewShortcodeConverter() *ShortcodeConverter { return &ShortcodeConverter{} }

func (*ShortcodeConverter) Format() string { return "shortcode" }

func (c *ShortcodeConverter) Convert(t *Tree) (*Output, error) {
	run := &shortcodeRun{tree: t}
	var b strings.Builder
	for _, r := range t.Roots {
		b.WriteString(run.node(r, 0))
	}
	return &Output{
		Content: b.String(),
		Report: models.ConversionReport{
			TargetFormat:      "shortcode",
			ElementsConverted: run.converted,
			FallbacksUsed:     run.fallbacks,
			Warnings:          run.warnings,
		},
	}, nil
}

type shortcodeRun struct {
	tree      *Tree
	converted int
	fallbacks int
	warnings  []string
}

func (r *shortcodeRun) node(id, depth int) string {
	n := &r.tree.Nodes[id]
	out, err := r.emit(n, depth)
	if err != nil {
		r.fallbacks++
		r.warnings = append(r.warnings, fmt.Sprintf("%v: kept as raw HTML", err))
		return indent(depth) + "[raw]" + n.HTML + "[/raw]\n"
	}
	return out
}

func (r *shortcodeRun) emit(n *Node, depth int) (string, error) {
	var open, closing string
	switch n.Kind {
	case KindSection:
		open, closing = "[section"+styleAttr(n)+"]", "[/section]"
	case KindRow:
		open, closing = "[row]", "[/row]"
	case KindColumn:
		open, closing = "[col]", "[/col]"
	default:
		out, err := r.leaf(n, depth)
		if err == nil {
			r.converted++
		}
		return out, err
	}

	var b strings.Builder
	b.WriteString(indent(depth) + open + "\n")
	for _, c := range n.Children {
		b.WriteString(r.node(c, depth+1))
	}
	b.WriteString(indent(depth) + closing + "\n")
	r.converted++
	return b.String(), nil
}

func (r *shortcodeRun) leaf(n *Node, depth int) (string, error) {
	pad := indent(depth)
	switch n.Tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return fmt.Sprintf("%s[heading level=%q]%s[/heading]\n", pad, n.Tag[1:], n.Text), nil
	case "p", "span", "blockquote", "pre":
		return fmt.Sprintf("%s[text]%s[/text]\n", pad, n.Text), nil
	case "img", "picture":
		return fmt.Sprintf("%s[image src=%q alt=%q]\n", pad, n.Attrs["src"], n.Attrs["alt"]), nil
	case "a", "button":
		return fmt.Sprintf("%s[button href=%q]%s[/button]\n", pad, n.Attrs["href"], n.Text), nil
	case "ul", "ol", "table":
		return fmt.Sprintf("%s[html]%s[/html]\n", pad, n.HTML), nil
	case "video":
		return fmt.Sprintf("%s[video src=%q]\n", pad, n.Attrs["src"]), nil
	case "hr":
		return pad + "[divider]\n", nil
	default:
		return "", errUnsupported{tag: n.Tag}
	}
}

// styleAttr surfaces the captured background and text colors as
// shortcode attributes, the only style hints the dialect supports.
func styleAttr(n *Node) string {
	if n.Styles == nil {
		return ""
	}
	out := ""
	if v := n.Styles["background-color"]; v != "" {
		out += fmt.Sprintf(" bg=%q", v)
	}
	if v := n.Styles["color"]; v != "" {
		out += fmt.Sprintf(" color=%q", v)
	}
	return out
}

func indent(depth int) string { return strings.Repeat("  ", depth) }
