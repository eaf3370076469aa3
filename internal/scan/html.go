package scan

import (
	_ "embed"
	"html/template"
	"io"
)

//go:embed static/index.html
var indexHTML string

//go:embed static/app.css
var appCSS []byte

//go:embed static/app.js
var appJS []byte

var pageTemplate = template.Must(template.New("index").Parse(indexHTML))

// renderPage writes the page for v. Only the screen named by v is visible.
func renderPage(w io.Writer, v View) error {
	return pageTemplate.Execute(w, struct {
		View
		ScreenInitial  Screen
		ScreenStart    Screen
		ScreenScanning Screen
	}{v, ScreenInitial, ScreenStart, ScreenScanning})
}
