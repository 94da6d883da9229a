package convert

import (
	"encoding/json"
	"strings"
	"testing"
)

const landingHTML = `<!DOCTYPE html><html><head><title>Acme Landing</title></head><body>
<div id="app">
<section class="hero">
  <div class="inner">
    <div class="col"><h1>Build faster</h1><p>Ship your site today.</p></div>
    <div class="col"><img src="assets/hero.png" alt="product shot"></div>
  </div>
</section>
<section class="features">
  <h2>Features</h2>
  <ul><li>Fast</li><li>Small</li></ul>
</section>
</div>
</body></html>`

func TestPreprocess_CollapsesWrappersAndClassifies(t *testing.T) {
	tree, err := Preprocess(landingHTML, nil)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	// #app collapses; the two <section> elements become roots.
	if len(tree.Roots) != 2 {
		t.Fatalf("got %d roots, want 2: %+v", len(tree.Roots), tree.Roots)
	}
	if tree.Title != "Acme Landing" {
		t.Errorf("title = %q", tree.Title)
	}

	hero := tree.Nodes[tree.Roots[0]]
	if hero.Kind != KindSection {
		t.Errorf("first root kind = %s", hero.Kind)
	}
	// .inner holds two .col divs: a row of two columns.
	if len(hero.Children) != 1 {
		t.Fatalf("hero has %d children, want 1", len(hero.Children))
	}
	row := tree.Nodes[hero.Children[0]]
	if row.Kind != KindRow || len(row.Children) != 2 {
		t.Fatalf("row kind=%s children=%d, want row with 2", row.Kind, len(row.Children))
	}
	for _, c := range row.Children {
		if tree.Nodes[c].Kind != KindColumn {
			t.Errorf("row child kind = %s, want column", tree.Nodes[c].Kind)
		}
	}
}

func TestPreprocess_AttachesCapturedStyles(t *testing.T) {
	styles := map[string]map[string]string{
		"body>div:1>section:1": {"background-color": "rgb(10, 10, 40)"},
	}
	tree, err := Preprocess(landingHTML, styles)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	hero := tree.Nodes[tree.Roots[0]]
	if hero.Styles["background-color"] != "rgb(10, 10, 40)" {
		t.Errorf("hero styles = %v", hero.Styles)
	}
}

func TestGutenberg_ConvertsLayoutAndLeaves(t *testing.T) {
	tree, err := Preprocess(landingHTML, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := NewGutenbergConverter().Convert(tree)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	for _, want := range []string{
		"<!-- wp:group",
		"<!-- wp:columns -->",
		`<!-- wp:heading {"level":1} -->`,
		"<!-- wp:paragraph -->",
		"<!-- wp:image -->",
		"<!-- wp:list -->",
	} {
		if !strings.Contains(out.Content, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if out.Report.TargetFormat != "gutenberg" {
		t.Errorf("target format = %q", out.Report.TargetFormat)
	}
	if out.Report.ElementsConverted == 0 {
		t.Error("ElementsConverted = 0")
	}
	if out.Report.FallbacksUsed != 0 {
		t.Errorf("FallbacksUsed = %d, warnings: %v", out.Report.FallbacksUsed, out.Report.Warnings)
	}
}

func TestGutenberg_UnsupportedElementFallsBack(t *testing.T) {
	html := `<html><body><section><h2>Chart</h2><canvas id="chart" width="100"></canvas></section></body></html>`
	tree, err := Preprocess(html, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := NewGutenbergConverter().Convert(tree)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if out.Report.FallbacksUsed != 1 {
		t.Fatalf("FallbacksUsed = %d, want 1", out.Report.FallbacksUsed)
	}
	if !strings.Contains(out.Content, "<!-- wp:html -->") {
		t.Error("raw HTML fallback block missing")
	}
	if !strings.Contains(out.Content, "<canvas") {
		t.Error("fallback lost the original element")
	}
	if len(out.Report.Warnings) != 1 {
		t.Errorf("warnings = %v", out.Report.Warnings)
	}
}

func TestShortcode_NestsLayout(t *testing.T) {
	tree, err := Preprocess(landingHTML, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := NewShortcodeConverter().Convert(tree)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	content := out.Content
	for _, want := range []string{"[section]", "[row]", "[col]", `[heading level="1"]Build faster[/heading]`, "[image src="} {
		if !strings.Contains(content, want) {
			t.Errorf("output missing %q in:\n%s", want, content)
		}
	}
	if strings.Index(content, "[section]") > strings.Index(content, "[row]") {
		t.Error("[section] must open before [row]")
	}
}

func TestWidgets_ProducesValidJSONWithFreshIDs(t *testing.T) {
	tree, err := Preprocess(landingHTML, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := NewWidgetConverter().Convert(tree)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	var doc widgetDocument
	if err := json.Unmarshal([]byte(out.Content), &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if doc.Title != "Acme Landing" {
		t.Errorf("title = %q", doc.Title)
	}
	if len(doc.Elements) != 2 {
		t.Fatalf("got %d top-level elements, want 2", len(doc.Elements))
	}

	seen := map[string]bool{}
	var walk func(els []*widgetElement)
	walk = func(els []*widgetElement) {
		for _, el := range els {
			if el.ID == "" {
				t.Error("element with empty id")
			}
			if seen[el.ID] {
				t.Errorf("duplicate element id %s", el.ID)
			}
			seen[el.ID] = true
			walk(el.Elements)
		}
	}
	walk(doc.Elements)
}

func TestCRM_RegeneratesFormIDs(t *testing.T) {
	html := `<html><body><section>
<h2>Contact</h2>
<form name="contact" action="/submit" id="contact-form">
  <label for="email">Email</label>
  <input type="email" id="email" name="email" required>
  <input type="hidden" name="csrf" value="abc">
  <textarea name="message" placeholder="Your message"></textarea>
  <input type="submit" value="Send">
</form>
</section></body></html>`

	tree, err := Preprocess(html, nil)
	if err != nil {
		t.Fatal(err)
	}

	conv := NewCRMConverter()
	out, err := conv.Convert(tree)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	var doc crmDocument
	if err := json.Unmarshal([]byte(out.Content), &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(doc.Forms) != 1 {
		t.Fatalf("got %d forms, want 1", len(doc.Forms))
	}
	form := doc.Forms[0]
	if form.GUID == "" || form.GUID == "contact-form" {
		t.Errorf("form guid not regenerated: %q", form.GUID)
	}
	// email + textarea + submit; hidden csrf dropped, submit kept as a field.
	if len(form.Fields) != 3 {
		t.Fatalf("got %d fields, want 3: %+v", len(form.Fields), form.Fields)
	}
	byName := map[string]crmField{}
	for _, f := range form.Fields {
		if f.ID == "" || f.ID == "email" {
			t.Errorf("field id not regenerated: %q", f.ID)
		}
		byName[f.Name] = f
	}
	if f := byName["email"]; !f.Required || f.Label != "Email" {
		t.Errorf("email field = %+v", f)
	}
	if f := byName["message"]; f.Type != "textarea" || f.Label != "Your message" {
		t.Errorf("message field = %+v", f)
	}

	// A second conversion of the same page binds nothing to the first.
	out2, err := conv.Convert(tree)
	if err != nil {
		t.Fatal(err)
	}
	var doc2 crmDocument
	if err := json.Unmarshal([]byte(out2.Content), &doc2); err != nil {
		t.Fatal(err)
	}
	if doc2.Forms[0].GUID == form.GUID {
		t.Error("form guid reused across conversions")
	}
}

func TestMarkdown_RendersHeadingsAndLists(t *testing.T) {
	tree, err := Preprocess(landingHTML, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := NewMarkdownConverter().Convert(tree)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if !strings.Contains(out.Content, "# Acme Landing") {
		t.Error("page title heading missing")
	}
	if !strings.Contains(out.Content, "# Build faster") {
		t.Error("h1 not rendered as heading")
	}
	if !strings.Contains(out.Content, "- Fast") {
		t.Error("list not rendered")
	}
}

func TestRegistry_ResolvesAllFormats(t *testing.T) {
	r := DefaultRegistry()
	want := []string{"crm", "gutenberg", "markdown", "shortcode", "widgets"}
	got := r.Formats()
	if len(got) != len(want) {
		t.Fatalf("formats = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("formats[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if _, ok := r.Get("wix"); ok {
		t.Error("unknown format resolved")
	}
}
