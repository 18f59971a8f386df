package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/dustin/go-humanize"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Theme is the palette of the shell.
type Theme struct {
	Primary       template.CSS
	PrimaryLight  template.CSS
	PrimaryDark   template.CSS
	Contrast      template.CSS
	Secondary     template.CSS
	Paper         template.CSS
	Text          template.CSS
	TextSecondary template.CSS
}

var DefaultTheme = Theme{
	Primary:       "#863fb5",
	PrimaryLight:  "#faf2ff",
	PrimaryDark:   "#4a335a",
	Contrast:      "#ffffff",
	Secondary:     "#f50057",
	Paper:         "#b32dac",
	Text:          "rgba(243,239,239,0.87)",
	TextSecondary: "rgba(249,244,244,0.6)",
}

type navLink struct {
	Label  string
	Path   string
	Active bool
}

var navPages = []navLink{
	{Label: "Home", Path: "/"},
	{Label: "Charts", Path: "/charts"},
}

func navFor(path string) []navLink {
	links := make([]navLink, len(navPages))
	for i, l := range navPages {
		l.Active = l.Path == path
		links[i] = l
	}
	return links
}

var templateFuncs = template.FuncMap{
	"comma": humanize.Comma,
	"rank":  func(i int) int { return i + 1 },
}

// pages holds one template set per page since each defines "content".
type pages struct {
	sets map[string]*template.Template
}

func parsePages() (*pages, error) {
	p := &pages{sets: make(map[string]*template.Template)}
	for _, name := range []string{"upload", "charts"} {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templatesFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		p.sets[name] = t
	}
	return p, nil
}

func (p *pages) render(w io.Writer, name string, data any) error {
	t, ok := p.sets[name]
	if !ok {
		return fmt.Errorf("unknown page template %q", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}
