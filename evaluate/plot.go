// Package evaluate renders comparison artifacts between real and generated
// data: value histograms and forward/backward diffusion trajectory panels.
// Everything here is best-effort from the trainer's point of view; errors are
// returned, logged upstream, and never abort training.
package evaluate

import (
	"fmt"
	"image/color"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Plotter owns the drawing-surface configuration reused across periodic
// evaluation calls. The trainer only calls its methods; figure lifecycle
// stays here.
type Plotter struct {
	Width  vg.Length
	Height vg.Length
}

func NewPlotter() *Plotter {
	return &Plotter{Width: 6 * vg.Inch, Height: 4 * vg.Inch}
}

// CompareHistograms writes a histogram overlay of real vs. generated values.
// Bin count follows the n/10 rule the reference plots use.
func (pl *Plotter) CompareHistograms(real, fake []float64, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("True (n=%d) vs. generated (n=%d)", len(real), len(fake))
	p.X.Label.Text = "Value"
	p.Y.Label.Text = "Density"

	bins := len(real) / 10
	if bins < 4 {
		bins = 4
	}

	hReal, err := plotter.NewHist(plotter.Values(real), bins)
	if err != nil {
		return fmt.Errorf("evaluate: real histogram: %w", err)
	}
	hReal.Normalize(1)
	hReal.FillColor = color.RGBA{B: 255, A: 128}

	hFake, err := plotter.NewHist(plotter.Values(fake), bins)
	if err != nil {
		return fmt.Errorf("evaluate: fake histogram: %w", err)
	}
	hFake.Normalize(1)
	hFake.FillColor = color.RGBA{R: 255, A: 128}

	p.Add(hReal, hFake)
	p.Legend.Add("Real Data", hReal)
	p.Legend.Add("Sampled Data", hFake)

	if err := p.Save(pl.Width, pl.Height, path); err != nil {
		return fmt.Errorf("evaluate: save %s: %w", path, err)
	}
	return nil
}

// Sequences writes generated sequences as line plots over the lag axis, one
// line per sample.
func (pl *Plotter) Sequences(series [][]float64, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Generated sequences (n=%d)", len(series))
	p.X.Label.Text = "Lag"
	p.Y.Label.Text = "Value"

	for _, s := range series {
		pts := make(plotter.XYs, len(s))
		for i, v := range s {
			pts[i] = plotter.XY{X: float64(i), Y: v}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("evaluate: sequence line: %w", err)
		}
		line.Width = vg.Points(1)
		p.Add(line)
	}

	if err := p.Save(pl.Width, pl.Height, path); err != nil {
		return fmt.Errorf("evaluate: save %s: %w", path, err)
	}
	return nil
}

// Trajectories writes a two-panel figure: each forward series plotted against
// the diffusion step axis, each backward series against the reversed axis.
// The step axis starts at -1 to account for the prepended zero row.
func (pl *Plotter) Trajectories(forward, backward [][]float64, path string) error {
	fwd, err := trajectoryPanel("Forward Path", forward, false)
	if err != nil {
		return err
	}
	bwd, err := trajectoryPanel("Backward Path", backward, true)
	if err != nil {
		return err
	}

	img := vgimg.New(2*pl.Width, pl.Height)
	dc := draw.New(img)
	plots := [][]*plot.Plot{{fwd, bwd}}
	canvases := plot.Align(plots, draw.Tiles{Rows: 1, Cols: 2}, dc)
	fwd.Draw(canvases[0][0])
	bwd.Draw(canvases[0][1])

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("evaluate: create %s: %w", path, err)
	}
	defer f.Close()
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		return fmt.Errorf("evaluate: write %s: %w", path, err)
	}
	return nil
}

func trajectoryPanel(title string, series [][]float64, reversed bool) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Diffusion Step"

	for _, s := range series {
		pts := make(plotter.XYs, len(s))
		for i, v := range s {
			x := float64(i - 1)
			if reversed {
				x = float64(len(s) - 2 - i)
			}
			pts[i] = plotter.XY{X: x, Y: v}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("evaluate: trajectory line: %w", err)
		}
		line.Width = vg.Points(1)
		p.Add(line)
	}
	return p, nil
}
