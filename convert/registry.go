package convert

import (
	"sort"

	"github.com/siteforge/siteforge/models"
)

// Output is one converter's result: the serialized document plus the
// report recorded on the project.
type Output struct {
	Content string
	Report  models.ConversionReport
}

// Converter serializes a layout tree into one target format.
type Converter interface {
	Format() string
	Convert(t *Tree) (*Output, error)
}

// Registry resolves target formats to converters.
type Registry struct {
	byFormat map[string]Converter
}

func NewRegistry(converters ...Converter) *Registry {
	r := &Registry{byFormat: make(map[string]Converter, len(converters))}
	for _, c := range converters {
		r.byFormat[c.Format()] = c
	}
	return r
}

// DefaultRegistry wires every built-in converter.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewGutenbergConverter(),
		NewShortcodeConverter(),
		NewWidgetConverter(),
		NewCRMConverter(),
		NewMarkdownConverter(),
	)
}

func (r *Registry) Get(format string) (Converter, bool) {
	c, ok := r.byFormat[format]
	return c, ok
}

func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.byFormat))
	for f := range r.byFormat {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// errUnsupported marks a subtree the converter's format cannot
// express. The walker catches it and substitutes the raw HTML
// fallback.
type errUnsupported struct{ tag string }

func (e errUnsupported) Error() string { return "unsupported element <" + e.tag + ">" }
