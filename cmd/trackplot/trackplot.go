// Command trackplot draws a track file written by trackconsumer, or a
// simulator CSV with -csv, as a PNG and optionally an interactive HTML page.
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/banshee-data/tracker/internal/chart"
	"github.com/banshee-data/tracker/internal/simulator"
	"github.com/banshee-data/tracker/internal/trackfile"
	"github.com/banshee-data/tracker/internal/version"
)

var (
	pngOut      = flag.String("png", "", "PNG output path (default: input name with .png)")
	htmlOut     = flag.String("html", "", "Interactive HTML output path (empty skips)")
	title       = flag.String("title", "", "Plot title (default: input file name)")
	assetsHost  = flag.String("assets", "", "Host serving echarts assets for the HTML page")
	csvInput    = flag.Bool("csv", false, "Input is a simulator CSV rather than a track file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// loadSeries reads path as a track file, or as a simulator CSV when csv is
// set. Simulator files have no predictions, only measured and truth points.
func loadSeries(path, title string, csv bool) (chart.Series, error) {
	if title == "" {
		title = filepath.Base(path)
	}
	if !csv {
		tracks, err := trackfile.ReadFile(path)
		if err != nil {
			return chart.Series{}, err
		}
		return chart.FromTracks(title, tracks), nil
	}

	samples, err := simulator.ReadCSVFile(path)
	if err != nil {
		return chart.Series{}, err
	}
	s := chart.Series{Title: title}
	for _, smp := range samples {
		s.Measured = append(s.Measured, smp.Measurement.Position)
		s.Truth = append(s.Truth, smp.Measurement.Truth)
	}
	return s, nil
}

func defaultPNGPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".png"
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: trackplot [flags] <tracks.txt>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("trackplot"))
		return
	}
	if flag.NArg() != 1 {
		flag.Usage()
		log.Fatal("exactly one input file is required")
	}
	input := flag.Arg(0)

	series, err := loadSeries(input, *title, *csvInput)
	if err != nil {
		log.Fatalf("failed to read %s: %v", input, err)
	}
	log.Printf("%s: %d predicted, %d measured, %d truth points",
		input, len(series.Predicted), len(series.Measured), len(series.Truth))

	out := *pngOut
	if out == "" {
		out = defaultPNGPath(input)
	}
	if err := chart.SavePNG(out, series); err != nil {
		log.Fatalf("failed to write %s: %v", out, err)
	}
	log.Printf("wrote %s", out)

	if *htmlOut != "" {
		if err := chart.SaveHTML(*htmlOut, series, chart.HTMLOptions{AssetsHost: *assetsHost}); err != nil {
			log.Fatalf("failed to write %s: %v", *htmlOut, err)
		}
		log.Printf("wrote %s", *htmlOut)
	}
}
