// Package convert turns a captured page into builder-specific output
// formats. A preprocessing pass normalizes the DOM into a
// section/row/column/leaf layout tree; each registered converter then
// serializes that tree into its target format, falling back to raw
// HTML for any subtree it cannot express.
package convert

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/siteforge/siteforge/models"
)

// NodeKind is the layout role assigned during preprocessing.
type NodeKind string

const (
	KindSection NodeKind = "section"
	KindRow     NodeKind = "row"
	KindColumn  NodeKind = "column"
	KindLeaf    NodeKind = "leaf"
)

// Node is one entry of the arena-allocated layout tree. Children are
// arena indexes, so the whole tree lives in one slice and subtree
// hand-off to a converter is just an index.
type Node struct {
	Kind   NodeKind
	Tag    string
	Attrs  map[string]string
	Styles map[string]string

	// Text is the flattened text content, populated for leaves.
	Text string

	// HTML is the outer HTML of the source element. Converters fall
	// back to it for subtrees their format cannot express.
	HTML string

	Children []int
}

// Tree is the normalized layout produced by Preprocess. Roots index
// the top-level sections.
type Tree struct {
	Nodes []Node
	Roots []int
	Title string
}

func (t *Tree) add(n Node) int {
	t.Nodes = append(t.Nodes, n)
	return len(t.Nodes) - 1
}

// containerSel matches elements that group content rather than being
// content, the candidates for row/column roles and wrapper collapsing.
var containerSel = cascadia.MustCompile("div, section, article, header, footer, main, aside, figure, form")

// skipSel matches elements preprocessing drops entirely.
var skipSel = cascadia.MustCompile("script, style, noscript, template, meta, link")

// leafTags are elements converted as single content units; their
// subtrees are never descended into.
var leafTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"img": true, "picture": true, "ul": true, "ol": true, "table": true,
	"blockquote": true, "pre": true, "a": true, "button": true,
	"video": true, "audio": true, "iframe": true, "form": true,
	"svg": true, "canvas": true, "hr": true, "span": true,
}

// Preprocess parses the captured HTML and builds the layout tree.
// elementStyles carries the computed styles recorded during capture,
// keyed by element path; pass nil when style analysis was disabled.
func Preprocess(pageHTML string, elementStyles map[string]map[string]string) (*Tree, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, models.NewCloneError(models.ErrCodeConversion, "parse HTML for conversion", err)
	}

	tree := &Tree{Title: strings.TrimSpace(doc.Find("head title").First().Text())}

	body := doc.Find("body").First()
	if body.Length() == 0 {
		return nil, models.NewCloneError(models.ErrCodeConversion, "document has no body", nil)
	}

	root, rootPath := unwrapShell(body, "body")

	idx := 0
	root.Children().Each(func(_ int, s *goquery.Selection) {
		idx++
		path := fmt.Sprintf("%s>%s:%d", rootPath, goquery.NodeName(s), idx)
		if s.Nodes == nil || skipSel.Match(s.Nodes[0]) {
			return
		}
		id := buildNode(tree, s, path, KindSection, elementStyles)
		if id >= 0 {
			tree.Roots = append(tree.Roots, id)
		}
	})

	return tree, nil
}

// wrapperTags are the shells SPAs and page builders wrap everything
// in. Semantic containers like <section> stay as sections.
var wrapperTags = map[string]bool{"div": true, "main": true, "article": true}

// unwrapShell descends through single-child wrapper chains (the
// #app > .page > .content pattern) so page sections land at the top of
// the tree. The element path follows the descent to keep style lookups
// aligned.
func unwrapShell(s *goquery.Selection, path string) (*goquery.Selection, string) {
	for {
		if strings.TrimSpace(ownText(s)) != "" {
			return s, path
		}
		children := s.Children()
		if children.Length() != 1 {
			return s, path
		}
		child := children.First()
		if !wrapperTags[goquery.NodeName(child)] {
			return s, path
		}
		s = child
		path = fmt.Sprintf("%s>%s:1", path, goquery.NodeName(child))
	}
}

// buildNode recursively classifies an element and appends it to the
// arena. Returns -1 for elements that produce no node.
func buildNode(tree *Tree, s *goquery.Selection, path string, kind NodeKind, elementStyles map[string]map[string]string) int {
	if s.Nodes == nil || skipSel.Match(s.Nodes[0]) {
		return -1
	}

	tag := goquery.NodeName(s)
	outer, err := goquery.OuterHtml(s)
	if err != nil {
		return -1
	}

	node := Node{
		Kind:   kind,
		Tag:    tag,
		Attrs:  attrMap(s),
		Styles: elementStyles[path],
		HTML:   outer,
	}

	if kind == KindLeaf || leafTags[tag] || !containerSel.Match(s.Nodes[0]) {
		node.Kind = KindLeaf
		node.Text = strings.TrimSpace(s.Text())
		return tree.add(node)
	}

	id := tree.add(node)

	childKind := childRole(kind)
	idx := 0
	s.Children().Each(func(_ int, c *goquery.Selection) {
		idx++
		childPath := fmt.Sprintf("%s>%s:%d", path, goquery.NodeName(c), idx)
		cid := buildNode(tree, c, childPath, childKind, elementStyles)
		if cid >= 0 {
			tree.Nodes[id].Children = append(tree.Nodes[id].Children, cid)
		}
	})

	// A container that produced no usable children carries its own
	// text or media; demote it to a leaf.
	if len(tree.Nodes[id].Children) == 0 {
		tree.Nodes[id].Kind = KindLeaf
		tree.Nodes[id].Text = strings.TrimSpace(s.Text())
	}
	return id
}

// childRole maps a parent's layout role to its children's.
func childRole(parent NodeKind) NodeKind {
	switch parent {
	case KindSection:
		return KindRow
	case KindRow:
		return KindColumn
	default:
		return KindLeaf
	}
}

func attrMap(s *goquery.Selection) map[string]string {
	if len(s.Nodes) == 0 || len(s.Nodes[0].Attr) == 0 {
		return nil
	}
	m := make(map[string]string, len(s.Nodes[0].Attr))
	for _, a := range s.Nodes[0].Attr {
		m[a.Key] = a.Val
	}
	return m
}

// ownText returns the text directly inside the element, excluding
// descendants.
func ownText(s *goquery.Selection) string {
	if len(s.Nodes) == 0 {
		return ""
	}
	var b strings.Builder
	for c := s.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// Walk calls fn for every node reachable from the roots, parents
// before children.
func (t *Tree) Walk(fn func(id int, n *Node)) {
	var visit func(id int)
	visit = func(id int) {
		fn(id, &t.Nodes[id])
		for _, c := range t.Nodes[id].Children {
			visit(c)
		}
	}
	for _, r := range t.Roots {
		visit(r)
	}
}
