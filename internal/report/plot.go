package report

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
)

var axisColors = [3]color.RGBA{
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
}

func faded(c color.RGBA) color.RGBA {
	c.A = 0x60
	return c
}

// Plot size used by SavePlots.
const (
	PlotWidth  = 14 * vg.Inch
	PlotHeight = 6 * vg.Inch
)

// NewPlot builds a raw versus filtered time-series plot of one kind.
func NewPlot(title string, kind Kind, ests []imu.Estimate) (*plot.Plot, error) {
	if len(ests) == 0 {
		return nil, fmt.Errorf("report: no estimates to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: %s", title, kind)
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = kind.unit()
	p.Add(plotter.NewGrid())

	for a, name := range axisNames {
		raw := make(plotter.XYs, len(ests))
		filtered := make(plotter.XYs, len(ests))
		for i, e := range ests {
			t := seconds(ests, i)
			r, f := kind.values(e)
			raw[i] = plotter.XY{X: t, Y: r[a]}
			filtered[i] = plotter.XY{X: t, Y: f[a]}
		}

		rawLine, err := plotter.NewLine(raw)
		if err != nil {
			return nil, err
		}
		rawLine.Color = faded(axisColors[a])
		rawLine.Width = vg.Points(0.5)
		p.Add(rawLine)
		p.Legend.Add("raw "+name, rawLine)

		filtLine, err := plotter.NewLine(filtered)
		if err != nil {
			return nil, err
		}
		filtLine.Color = axisColors[a]
		filtLine.Width = vg.Points(1.5)
		p.Add(filtLine)
		p.Legend.Add("filtered "+name, filtLine)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// WritePNG renders one plot of ests as PNG.
func WritePNG(w io.Writer, title string, kind Kind, ests []imu.Estimate) error {
	p, err := NewPlot(title, kind, ests)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(PlotWidth, PlotHeight, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePlots writes <prefix>_angle.png and <prefix>_rate.png into dir and
// returns their paths.
func SavePlots(dir, prefix, title string, ests []imu.Estimate) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}
	var paths []string
	for _, kind := range []Kind{KindAngle, KindRate} {
		p, err := NewPlot(title, kind, ests)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", prefix, kind))
		if err := p.Save(PlotWidth, PlotHeight, path); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
