package render

import (
	"html/template"
	"strings"
)

// Theme is a small palette applied to every layout. Values are trusted CSS.
type Theme struct {
	Name       string
	Background template.CSS
	Surface    template.CSS
	Primary    template.CSS
	Accent     template.CSS
	Text       template.CSS
	Muted      template.CSS
	Font       template.CSS
}

var themes = map[string]Theme{
	"ocean": {
		Name: "ocean", Background: "#0b2545", Surface: "#ffffff", Primary: "#134074",
		Accent: "#13c4a3", Text: "#1b1b1e", Muted: "#6c757d", Font: "'Helvetica Neue', Arial, sans-serif",
	},
	"slate": {
		Name: "slate", Background: "#1f2933", Surface: "#f5f7fa", Primary: "#323f4b",
		Accent: "#f0b429", Text: "#102a43", Muted: "#627d98", Font: "'Segoe UI', Roboto, sans-serif",
	},
	"paper": {
		Name: "paper", Background: "#fdf6e3", Surface: "#fffdf7", Primary: "#073642",
		Accent: "#cb4b16", Text: "#222222", Muted: "#839496", Font: "Georgia, 'Times New Roman', serif",
	},
}

// LookupTheme returns the named theme, falling back to ocean.
func LookupTheme(name string) Theme {
	if t, ok := themes[strings.ToLower(name)]; ok {
		return t
	}
	return themes["ocean"]
}
