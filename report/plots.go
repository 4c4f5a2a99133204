// Package report writes the artefacts of a training or baseline run:
// plots, the JSON performance log and a Prometheus metrics file.
package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// scatterRange is the fixed axis range of the observed vs. predicted plot.
const scatterRange = 2.5

var (
	colorPredicted = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	colorObserved  = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	colorRed       = color.RGBA{R: 220, G: 30, B: 30, A: 255}
	colorBlue      = color.RGBA{R: 20, G: 40, B: 220, A: 255}
)

// PlotPredictions writes predicted and observed values against their month
// index.
func PlotPredictions(path, title string, preds, observed []float64) error {
	return plotSeries(path, title, preds, observed, colorPredicted, colorObserved)
}

// PlotPersistence is PlotPredictions with the baseline colour scheme
// (predicted blue, observed red).
func PlotPersistence(path, title string, preds, observed []float64) error {
	return plotSeries(path, title, preds, observed, colorBlue, colorRed)
}

func plotSeries(path, title string, preds, observed []float64, predColor, obsColor color.Color) error {
	if len(preds) != len(observed) {
		return fmt.Errorf("plot %s: %d predictions for %d observations", path, len(preds), len(observed))
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Month"
	p.Y.Label.Text = "SSTA"

	if err := addScatter(p, "Predicted", indexed(preds), predColor); err != nil {
		return err
	}
	if err := addScatter(p, "Observed", indexed(observed), obsColor); err != nil {
		return err
	}
	p.Add(plotter.NewGrid())
	return save(p, path)
}

// PlotScatter writes predictions against observations on fixed
// [-2.5, 2.5] axes with the y = x reference line.
func PlotScatter(path, title string, observed, preds []float64) error {
	if len(preds) != len(observed) {
		return fmt.Errorf("plot %s: %d predictions for %d observations", path, len(preds), len(observed))
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Observation"
	p.Y.Label.Text = "Prediction"

	xys := make(plotter.XYs, len(preds))
	for i := range preds {
		xys[i] = plotter.XY{X: observed[i], Y: preds[i]}
	}
	if err := addScatter(p, "", xys, colorPredicted); err != nil {
		return err
	}
	ref, err := plotter.NewLine(plotter.XYs{{X: -scatterRange, Y: -scatterRange}, {X: scatterRange, Y: scatterRange}})
	if err != nil {
		return err
	}
	ref.Color = colorRed
	p.Add(ref)

	p.X.Min, p.X.Max = -scatterRange, scatterRange
	p.Y.Min, p.Y.Max = -scatterRange, scatterRange
	return save(p, path)
}

// PlotPerformance writes the training loss and the validation metric against
// the epoch number. NaN metric values are skipped.
func PlotPerformance(path, lossName string, epochs []int, loss, eval []float64) error {
	if len(loss) != len(epochs) || len(eval) != len(epochs) {
		return fmt.Errorf("plot %s: %d epochs, %d losses, %d metrics", path, len(epochs), len(loss), len(eval))
	}
	p := plot.New()
	p.Title.Text = "Performance"
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Value"

	if err := addLine(p, "Loss: "+lossName, epochXYs(epochs, loss), colorPredicted); err != nil {
		return err
	}
	if err := addLine(p, "Validation Metric: MSE", epochXYs(epochs, eval), colorObserved); err != nil {
		return err
	}
	p.Add(plotter.NewGrid())
	return save(p, path)
}

func addScatter(p *plot.Plot, name string, xys plotter.XYs, c color.Color) error {
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Radius = vg.Points(2)
	p.Add(s)
	if name != "" {
		p.Legend.Add(name, s)
	}
	return nil
}

func addLine(p *plot.Plot, name string, xys plotter.XYs, c color.Color) error {
	if len(xys) == 0 {
		return nil
	}
	l, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	l.Color = c
	l.Width = vg.Points(1.2)
	p.Add(l)
	p.Legend.Add(name, l)
	return nil
}

func indexed(ys []float64) plotter.XYs {
	xys := make(plotter.XYs, len(ys))
	for i, y := range ys {
		xys[i] = plotter.XY{X: float64(i), Y: y}
	}
	return xys
}

func epochXYs(epochs []int, ys []float64) plotter.XYs {
	xys := make(plotter.XYs, 0, len(ys))
	for i, y := range ys {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		xys = append(xys, plotter.XY{X: float64(epochs[i]), Y: y})
	}
	return xys
}

// save writes p as an image whose format follows the file extension.
func save(p *plot.Plot, path string) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := p.Save(12*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
