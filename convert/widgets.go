package convert

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/siteforge/siteforge/models"
)

// WidgetConverter serializes the layout tree as the element/widget
// JSON document drag-and-drop builders import. Every element carries a
// fresh id so repeated conversions of the same page never collide
// inside one builder workspace.
type WidgetConverter struct{}

func NewWidgetConverter() *WidgetConverter { return &WidgetConverter{} }

func (*WidgetConverter) Format() string { return "widgets" }

// widgetElement is one node of the exported document. Layout elements
// carry Elements; widgets carry Settings.
type widgetElement struct {
	ID       string           `json:"id"`
	ElType   string           `json:"elType"`
	Widget   string           `json:"widgetType,omitempty"`
	Settings map[string]any   `json:"settings,omitempty"`
	Elements []*widgetElement `json:"elements,omitempty"`
}

type widgetDocument struct {
	Title    string           `json:"title"`
	Version  string           `json:"version"`
	Elements []*widgetElement `json:"elements"`
}

func (c *WidgetConverter) Convert(t *Tree) (*Output, error) {
	run := &widgetRun{tree: t}
	doc := widgetDocument{Title: t.Title, Version: "0.4"}
	for _, r := range t.Roots {
		doc.Elements = append(doc.Elements, run.node(r))
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, models.NewCloneError(models.ErrCodeConversion, "marshal widget document", err)
	}
	return &Output{
		Content: string(raw),
		Report: models.ConversionReport{
			TargetFormat:      "widgets",
			ElementsConverted: run.converted,
			FallbacksUsed:     run.fallbacks,
			Warnings:          run.warnings,
		},
	}, nil
}

type widgetRun struct {
	tree      *Tree
	converted int
	fallbacks int
	warnings  []string
}

func (r *widgetRun) node(id int) *widgetElement {
	n := &r.tree.Nodes[id]
	el, err := r.emit(n)
	if err != nil {
		r.fallbacks++
		r.warnings = append(r.warnings, fmt.Sprintf("%v: kept as raw HTML", err))
		return &widgetElement{
			ID:       uuid.NewString(),
			ElType:   "widget",
			Widget:   "html",
			Settings: map[string]any{"html": n.HTML},
		}
	}
	return el
}

func (r *widgetRun) emit(n *Node) (*widgetElement, error) {
	elType := ""
	switch n.Kind {
	case KindSection:
		elType = "section"
	case KindRow:
		elType = "container"
	case KindColumn:
		elType = "column"
	}

	if elType != "" {
		el := &widgetElement{ID: uuid.NewString(), ElType: elType, Settings: styleSettings(n)}
		for _, c := range n.Children {
			el.Elements = append(el.Elements, r.node(c))
		}
		r.converted++
		return el, nil
	}

	el, err := r.leafWidget(n)
	if err != nil {
		return nil, err
	}
	r.converted++
	return el, nil
}

func (r *widgetRun) leafWidget(n *Node) (*widgetElement, error) {
	el := &widgetElement{ID: uuid.NewString(), ElType: "widget"}
	switch n.Tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		el.Widget = "heading"
		el.Settings = map[string]any{"title": n.Text, "header_size": n.Tag}
	case "p", "span", "blockquote", "pre":
		el.Widget = "text-editor"
		el.Settings = map[string]any{"editor": n.Text}
	case "img", "picture":
		el.Widget = "image"
		el.Settings = map[string]any{"url": n.Attrs["src"], "alt": n.Attrs["alt"]}
	case "a", "button":
		el.Widget = "button"
		el.Settings = map[string]any{"text": n.Text, "link": n.Attrs["href"]}
	case "video":
		el.Widget = "video"
		el.Settings = map[string]any{"url": n.Attrs["src"]}
	case "ul", "ol", "table", "iframe":
		el.Widget = "html"
		el.Settings = map[string]any{"html": n.HTML}
	case "hr":
		el.Widget = "divider"
	default:
		return nil, errUnsupported{tag: n.Tag}
	}
	return el, nil
}

func styleSettings(n *Node) map[string]any {
	if len(n.Styles) == 0 {
		return nil
	}
	s := map[string]any{}
	if v := n.Styles["background-color"]; v != "" {
		s["background_color"] = v
	}
	if v := n.Styles["color"]; v != "" {
		s["text_color"] = v
	}
	if len(s) == 0 {
		return nil
	}
	return s
}
