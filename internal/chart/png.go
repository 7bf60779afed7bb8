package chart

import (
	"fmt"
	"image/color"
	"io"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/tracker/internal/track"
)

var (
	predictedColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	measuredColor  = color.RGBA{R: 255, G: 82, B: 82, A: 255}
	truthColor     = color.RGBA{R: 53, G: 183, B: 121, A: 255}
)

// Default PNG size.
const (
	DefaultWidth  = 14 * vg.Inch
	DefaultHeight = 6 * vg.Inch
)

type projection struct {
	name   string
	xLabel string
	yLabel string
	pick   func(track.Vector3) (float64, float64)
}

var projections = []projection{
	{"X/Y", "X (m)", "Y (m)", func(v track.Vector3) (float64, float64) { return v.X, v.Y }},
	{"X/Z", "X (m)", "Z (m)", func(v track.Vector3) (float64, float64) { return v.X, v.Z }},
}

// WritePNG draws the X/Y and X/Z projections of s side by side.
func WritePNG(w io.Writer, s Series, width, height vg.Length) error {
	if s.Empty() {
		return ErrNoData
	}

	row := make([]*plot.Plot, 0, len(projections))
	for _, proj := range projections {
		p, err := projectionPlot(s, proj)
		if err != nil {
			return fmt.Errorf("%s projection: %w", proj.name, err)
		}
		row = append(row, p)
	}

	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      1,
		Cols:      len(row),
		PadX:      vg.Millimeter * 4,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}
	canvases := plot.Align([][]*plot.Plot{row}, tiles, dc)
	for i, p := range row {
		p.Draw(canvases[0][i])
	}

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// SavePNG writes the plot to path at the default size.
func SavePNG(path string, s Series) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WritePNG(f, s, DefaultWidth, DefaultHeight); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func projectionPlot(s Series, proj projection) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = proj.name
	if s.Title != "" {
		p.Title.Text = fmt.Sprintf("%s - %s", s.Title, proj.name)
	}
	p.X.Label.Text = proj.xLabel
	p.Y.Label.Text = proj.yLabel
	p.Add(plotter.NewGrid())

	if len(s.Predicted) > 0 {
		line, err := plotter.NewLine(projectXYs(s.Predicted, proj))
		if err != nil {
			return nil, err
		}
		line.Color = predictedColor
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add("predicted", line)
	}

	for _, pts := range []struct {
		name  string
		set   []track.Vector3
		color color.Color
		shape draw.GlyphDrawer
	}{
		{"measured", s.Measured, measuredColor, draw.CrossGlyph{}},
		{"truth", s.Truth, truthColor, draw.CircleGlyph{}},
	} {
		if len(pts.set) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(projectXYs(pts.set, proj))
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = pts.color
		sc.GlyphStyle.Shape = pts.shape
		sc.GlyphStyle.Radius = vg.Points(2.5)
		p.Add(sc)
		p.Legend.Add(pts.name, sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func projectXYs(set []track.Vector3, proj projection) plotter.XYs {
	xys := make(plotter.XYs, len(set))
	for i, v := range set {
		xys[i].X, xys[i].Y = proj.pick(v)
	}
	return xys
}
