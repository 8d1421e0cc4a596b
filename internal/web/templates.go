package web

import (
	"embed"
	"html/template"

	"github.com/Masterminds/sprig"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"justapengu.in/acstats/internal/store"
)

//go:embed templates
var templateFS embed.FS

func (h *Web) parseTemplates() error {
	funcs := sprig.HtmlFuncMap()
	funcs["laptime"] = store.FormatLapTime
	funcs["trackname"] = h.displayTrackName
	funcs["reltime"] = humanize.Time

	templates, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")

	if err != nil {
		return errors.Wrap(err, "could not parse templates")
	}

	h.templates = templates

	return nil
}
