// Package report renders estimate traces as interactive HTML charts and
// static PNG plots.
package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
)

// EChartsAssetsHost serves the echarts javascript referenced by rendered pages.
const EChartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// DefaultMaxPoints bounds the points per series in HTML charts.
const DefaultMaxPoints = 5000

var axisNames = [3]string{"x", "y", "z"}

// Kind selects the angle or rate channels.
type Kind int

const (
	KindAngle Kind = iota
	KindRate
)

func (k Kind) String() string {
	if k == KindRate {
		return "rate"
	}
	return "angle"
}

func (k Kind) unit() string {
	if k == KindRate {
		return "rad/s"
	}
	return "rad"
}

func (k Kind) values(e imu.Estimate) (raw, filtered [3]float64) {
	if k == KindRate {
		return e.Raw.Rate, e.Rate
	}
	return e.Raw.Angle, e.Angle
}

// stride returns the decimation step keeping at most maxPoints of n.
func stride(n, maxPoints int) int {
	if maxPoints <= 0 || n <= maxPoints {
		return 1
	}
	return (n + maxPoints - 1) / maxPoints
}

// seconds returns the time of e relative to the first estimate.
func seconds(ests []imu.Estimate, i int) float64 {
	return float64(ests[i].TimestampNanos-ests[0].TimestampNanos) / 1e9
}

func lineChart(title string, kind Kind, ests []imu.Estimate, maxPoints int) *charts.Line {
	step := stride(len(ests), maxPoints)

	x := make([]string, 0, len(ests)/step+1)
	var raw, filtered [3][]opts.LineData
	for i := 0; i < len(ests); i += step {
		x = append(x, fmt.Sprintf("%.3f", seconds(ests, i)))
		r, f := kind.values(ests[i])
		for a := range axisNames {
			raw[a] = append(raw[a], opts.LineData{Value: r[a]})
			filtered[a] = append(filtered[a], opts.LineData{Value: f[a]})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "480px", AssetsHost: EChartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s: %s", title, kind), Subtitle: fmt.Sprintf("samples=%d stride=%d", len(ests), step)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: kind.unit()}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}, opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x)
	for a, name := range axisNames {
		line.AddSeries("raw "+name, raw[a],
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			charts.WithLineStyleOpts(opts.LineStyle{Width: 1, Opacity: opts.Float(0.4)}),
		)
		line.AddSeries("filtered "+name, filtered[a],
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			charts.WithLineStyleOpts(opts.LineStyle{Width: 2}),
		)
	}
	return line
}

// RenderHTML writes a page with angle and rate charts of ests. maxPoints
// caps each series; zero uses DefaultMaxPoints.
func RenderHTML(w io.Writer, title string, ests []imu.Estimate, maxPoints int) error {
	if len(ests) == 0 {
		return fmt.Errorf("report: no estimates to chart")
	}
	if maxPoints == 0 {
		maxPoints = DefaultMaxPoints
	}

	page := components.NewPage()
	page.SetAssetsHost(EChartsAssetsHost)
	page.SetPageTitle(title)
	page.AddCharts(
		lineChart(title, KindAngle, ests, maxPoints),
		lineChart(title, KindRate, ests, maxPoints),
	)
	return page.Render(w)
}
