// Package report renders an HTML page comparing covers with their stego
// carriers: per-carrier PSNR and intensity histograms.
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/stego"
)

// CarrierStats compares one cover with its carrier.
type CarrierStats struct {
	Name      string
	PSNR      float64 // +Inf when the images are identical
	CoverHist [256]int
	StegoHist [256]int
}

// Histogram counts every sample value of r across all channels.
func Histogram(r *qsp.Raster) [256]int {
	var h [256]int
	for _, v := range r.Pix {
		h[v]++
	}
	return h
}

// Compare computes the statistics of one cover and carrier pair.
func Compare(name string, cover, carrier *qsp.Raster) (CarrierStats, error) {
	psnr, err := stego.PSNR(cover, carrier)
	if err != nil {
		return CarrierStats{}, fmt.Errorf("%s: %w", name, err)
	}
	return CarrierStats{
		Name:      name,
		PSNR:      psnr,
		CoverHist: Histogram(cover),
		StegoHist: Histogram(carrier),
	}, nil
}

func psnrChart(stats []CarrierStats) *charts.Bar {
	names := make([]string, len(stats))
	items := make([]opts.BarData, len(stats))
	for i, s := range stats {
		names[i] = s.Name
		v := s.PSNR
		if math.IsInf(v, 1) {
			v = 100
		}
		items[i] = opts.BarData{Value: math.Round(v*100) / 100}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "PSNR per carrier", Subtitle: "dB, identical images shown as 100"}),
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "qsp lock report", Width: "1200px", Height: "400px"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).
		AddSeries("PSNR", items).
		SetSeriesOptions(charts.WithLabelOpts(opts.Label{Show: opts.Bool(true)}))
	return bar
}

func histogramChart(s CarrierStats) *charts.Line {
	labels := make([]string, 256)
	cover := make([]opts.LineData, 256)
	carrier := make([]opts.LineData, 256)
	for v := 0; v < 256; v++ {
		labels[v] = strconv.Itoa(v)
		cover[v] = opts.LineData{Value: s.CoverHist[v]}
		carrier[v] = opts.LineData{Value: s.StegoHist[v]}
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: s.Name, Subtitle: fmt.Sprintf("PSNR %.2f dB", s.PSNR)}),
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "400px"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}, opts.DataZoom{Type: "slider"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(labels).
		AddSeries("cover", cover).
		AddSeries("stego", carrier)
	return line
}

// Render writes the report page.
func Render(w io.Writer, stats []CarrierStats) error {
	page := components.NewPage().SetPageTitle("qsp lock report")
	page.AddCharts(psnrChart(stats))
	for _, s := range stats {
		page.AddCharts(histogramChart(s))
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

// WriteFile renders the report to path.
func WriteFile(path string, stats []CarrierStats) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	if err := Render(f, stats); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	return nil
}
