package chart

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/tracker/internal/track"
)

// HTMLOptions tweaks the interactive page.
type HTMLOptions struct {
	// AssetsHost overrides where echarts JavaScript is loaded from. Empty
	// uses the go-echarts CDN.
	AssetsHost string
	Theme      string
}

// WriteHTML renders s as a page with a 3-D scatter of every point set and a
// 3-D line of the predicted path.
func WriteHTML(w io.Writer, s Series, o HTMLOptions) error {
	if s.Empty() {
		return ErrNoData
	}
	title := s.Title
	if title == "" {
		title = "Tracks"
	}
	init := opts.Initialization{
		PageTitle:  title,
		Theme:      o.Theme,
		Width:      "900px",
		Height:     "700px",
		AssetsHost: o.AssetsHost,
	}
	axes := axisOpts()

	scatter := charts.NewScatter3D()
	scatter.SetGlobalOptions(append([]charts.GlobalOpts{
		charts.WithInitializationOpts(init),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("predicted=%d measured=%d truth=%d", len(s.Predicted), len(s.Measured), len(s.Truth)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	}, axes...)...)
	scatter.AddSeries("predicted", points3D(s.Predicted), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#1f77b4"}))
	if len(s.Measured) > 0 {
		scatter.AddSeries("measured", points3D(s.Measured), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))
	}
	if len(s.Truth) > 0 {
		scatter.AddSeries("truth", points3D(s.Truth), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#35b779"}))
	}

	line := charts.NewLine3D()
	line.SetGlobalOptions(append([]charts.GlobalOpts{
		charts.WithInitializationOpts(init),
		charts.WithTitleOpts(opts.Title{Title: "Predicted path"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	}, axes...)...)
	line.AddSeries("predicted", points3D(s.Predicted))

	page := components.NewPage()
	page.PageTitle = title
	if o.AssetsHost != "" {
		page.SetAssetsHost(o.AssetsHost)
	}
	page.AddCharts(scatter, line)
	return page.Render(w)
}

// SaveHTML writes the page to path.
func SaveHTML(path string, s Series, o HTMLOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteHTML(f, s, o); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func axisOpts() []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithXAxis3DOpts(opts.XAxis3D{Name: "X (m)"}),
		charts.WithYAxis3DOpts(opts.YAxis3D{Name: "Y (m)"}),
		charts.WithZAxis3DOpts(opts.ZAxis3D{Name: "Z (m)"}),
	}
}

func points3D(set []track.Vector3) []opts.Chart3DData {
	out := make([]opts.Chart3DData, len(set))
	for i, v := range set {
		out[i] = opts.Chart3DData{Value: []interface{}{v.X, v.Y, v.Z}}
	}
	return out
}
