package convert

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/siteforge/siteforge/models"
)

// CRMConverter serializes the layout tree as the module/form JSON a
// hosted CRM page builder imports. Forms get rebuilt field-by-field
// with freshly generated ids, since imported forms must bind to the
// destination account rather than the source site's endpoints.
type CRMConverter struct{}

func NewCRMConverter() *CRMConverter { return &CRMConverter{} }

func (*CRMConverter) Format() string { return "crm" }

type crmModule struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Body   map[string]any `json:"body,omitempty"`
	Nested []*crmModule   `json:"modules,omitempty"`
}

type crmForm struct {
	GUID   string     `json:"guid"`
	Name   string     `json:"name"`
	Action string     `json:"original_action,omitempty"`
	Fields []crmField `json:"fields"`
}

type crmField struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Label    string `json:"label,omitempty"`
	Required bool   `json:"required"`
}

type crmDocument struct {
	Title   string       `json:"title"`
	Modules []*crmModule `json:"modules"`
	Forms   []*crmForm   `json:"forms"`
}

func (c *CRMConverter) Convert(t *Tree) (*Output, error) {
	run := &crmRun{tree: t}
	doc := crmDocument{Title: t.Title, Forms: []*crmForm{}}
	for _, r := range t.Roots {
		doc.Modules = append(doc.Modules, run.node(r))
	}
	doc.Forms = run.forms

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, models.NewCloneError(models.ErrCodeConversion, "marshal crm document", err)
	}
	return &Output{
		Content: string(raw),
		Report: models.ConversionReport{
			TargetFormat:      "crm",
			ElementsConverted: run.converted,
			FallbacksUsed:     run.fallbacks,
			Warnings:          run.warnings,
		},
	}, nil
}

type crmRun struct {
	tree      *Tree
	converted int
	fallbacks int
	warnings  []string
	forms     []*crmForm
}

func (r *crmRun) node(id int) *crmModule {
	n := &r.tree.Nodes[id]
	mod, err := r.emit(n)
	if err != nil {
		r.fallbacks++
		r.warnings = append(r.warnings, fmt.Sprintf("%v: kept as raw HTML", err))
		return &crmModule{ID: uuid.NewString(), Type: "raw_html", Body: map[string]any{"html": n.HTML}}
	}
	return mod
}

func (r *crmRun) emit(n *Node) (*crmModule, error) {
	if n.Kind != KindLeaf {
		mod := &crmModule{ID: uuid.NewString(), Type: string(n.Kind)}
		for _, c := range n.Children {
			mod.Nested = append(mod.Nested, r.node(c))
		}
		r.converted++
		return mod, nil
	}

	mod := &crmModule{ID: uuid.NewString()}
	switch n.Tag {
	case "form":
		form, err := r.rebuildForm(n)
		if err != nil {
			return nil, err
		}
		r.forms = append(r.forms, form)
		mod.Type = "form"
		mod.Body = map[string]any{"form_guid": form.GUID}
	case "h1", "h2", "h3", "h4", "h5", "h6":
		mod.Type = "rich_text"
		mod.Body = map[string]any{"html": fmt.Sprintf("<%s>%s</%s>", n.Tag, n.Text, n.Tag)}
	case "p", "span", "blockquote", "ul", "ol":
		mod.Type = "rich_text"
		mod.Body = map[string]any{"html": n.HTML}
	case "img", "picture":
		mod.Type = "image"
		mod.Body = map[string]any{"src": n.Attrs["src"], "alt": n.Attrs["alt"]}
	case "a", "button":
		mod.Type = "cta"
		mod.Body = map[string]any{"text": n.Text, "href": n.Attrs["href"]}
	default:
		return nil, errUnsupported{tag: n.Tag}
	}
	r.converted++
	return mod, nil
}

// rebuildForm parses the form subtree and reconstructs every field
// with a new id.
func (r *crmRun) rebuildForm(n *Node) (*crmForm, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(n.HTML))
	if err != nil {
		return nil, errUnsupported{tag: "form"}
	}

	form := &crmForm{
		GUID:   uuid.NewString(),
		Name:   n.Attrs["name"],
		Action: n.Attrs["action"],
	}
	if form.Name == "" {
		form.Name = "Imported form"
	}

	doc.Find("input, select, textarea").Each(func(_ int, s *goquery.Selection) {
		fieldType, _ := s.Attr("type")
		tag := goquery.NodeName(s)
		if tag != "input" {
			fieldType = tag
		}
		if fieldType == "" {
			fieldType = "text"
		}
		if fieldType == "hidden" {
			return
		}
		name, _ := s.Attr("name")
		_, required := s.Attr("required")
		form.Fields = append(form.Fields, crmField{
			ID:       uuid.NewString(),
			Name:     name,
			Type:     fieldType,
			Label:    fieldLabel(doc, s),
			Required: required,
		})
	})
	return form, nil
}

// fieldLabel resolves the visible label of one form control.
func fieldLabel(doc *goquery.Document, s *goquery.Selection) string {
	if id, ok := s.Attr("id"); ok && id != "" {
		if label := doc.Find(fmt.Sprintf("label[for=%q]", id)); label.Length() > 0 {
			return strings.TrimSpace(label.First().Text())
		}
	}
	if v, ok := s.Attr("placeholder"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
