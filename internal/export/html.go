package export

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/ppiankov/skylink/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var indexTemplate = template.Must(template.New("index.html.tmpl").Funcs(template.FuncMap{
	"km":  formatKM,
	"pct": func(r float64) string { return fmt.Sprintf("%.0f%%", r*100) },
}).ParseFS(templateFS, "templates/index.html.tmpl"))

type htmlImage struct {
	model.ImageRecord
	IsImage bool
}

type htmlRow struct {
	Date       model.Day
	Name       string
	JPLURL     string
	Hazardous  bool
	Diameter   string
	ImageTitle string
	MatchType  model.MatchType
	Score      float64
}

type htmlPage struct {
	Subject     string
	GeneratedAt string
	Latest      *htmlImage
	LatestDay   *model.DailySummary
	Stats       model.LinkageStats
	Coverage    model.Coverage
	Rows        []htmlRow
	Narrative   string
}

// WriteHTML renders the index page: the latest image, the latest day's
// object summary and the linkage table.
func WriteHTML(w io.Writer, report *model.Report) error {
	return indexTemplate.Execute(w, buildPage(report))
}

func buildPage(report *model.Report) htmlPage {
	l := &report.Linkage
	page := htmlPage{
		Subject:     report.Subject,
		GeneratedAt: report.GeneratedAt.UTC().Format(time.RFC1123),
		Stats:       l.Stats,
		Coverage:    report.Coverage,
	}

	if latest, ok := latestImage(l.Images); ok {
		page.Latest = &htmlImage{
			ImageRecord: latest,
			IsImage:     latest.MediaType == "" || latest.MediaType == string(model.MediaImage),
		}
	}
	if n := len(report.Daily); n > 0 {
		day := report.Daily[n-1]
		page.LatestDay = &day
	}

	obsByID := l.ObservationByID()
	imgByID := l.ImageByID()
	for _, v := range l.Views {
		obs := obsByID[v.ObservationID]
		row := htmlRow{
			Date:      obs.Date,
			Name:      obs.Name,
			JPLURL:    obs.JPLURL,
			Hazardous: obs.Hazardous,
			MatchType: v.Type,
			Score:     v.Score,
		}
		if obs.Size != nil {
			row.Diameter = formatKM(obs.Size.MinKM) + " to " + formatKM(obs.Size.MaxKM)
		}
		if v.ImageID != nil {
			row.ImageTitle = imgByID[*v.ImageID].Title
		}
		page.Rows = append(page.Rows, row)
	}

	if report.LLM != nil && report.LLM.Enabled {
		page.Narrative = report.LLM.SummaryMD
	}
	return page
}

func latestImage(images []model.ImageRecord) (model.ImageRecord, bool) {
	var latest model.ImageRecord
	found := false
	for _, img := range images {
		if !found || img.Date > latest.Date || (img.Date == latest.Date && img.ID < latest.ID) {
			latest = img
			found = true
		}
	}
	return latest, found
}

func formatKM(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%.0f m", km*1000)
	}
	return fmt.Sprintf("%.2f km", km)
}
