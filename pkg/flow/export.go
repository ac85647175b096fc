package flow

import (
	"io"
	"os"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"flow4d/internal/models"
	"flow4d/pkg/flowerr"
)

// curveRow is one CSV line of a time-velocity curve.
type curveRow struct {
	TimeMs       float64 `csv:"time_ms"`
	MeanVelocity float64 `csv:"mean_velocity_cm_s"`
	MaxVelocity  float64 `csv:"max_velocity_cm_s"`
	MinVelocity  float64 `csv:"min_velocity_cm_s"`
	StdVelocity  float64 `csv:"std_velocity_cm_s"`
	FlowRate     float64 `csv:"flow_rate_ml_s"`
}

func curveRows(curve *models.TimeVelocityCurve) []*curveRow {
	times := curve.Times()
	rows := make([]*curveRow, len(curve.Measurements))
	for i, m := range curve.Measurements {
		rows[i] = &curveRow{
			TimeMs:       times[i],
			MeanVelocity: m.MeanVelocity,
			MaxVelocity:  m.MaxVelocity,
			MinVelocity:  m.MinVelocity,
			StdVelocity:  m.StdVelocity,
			FlowRate:     m.FlowRate,
		}
	}
	return rows
}

// WriteCurveCSV writes the curve as CSV: a header row followed by one row
// per phase.
func WriteCurveCSV(curve *models.TimeVelocityCurve, w io.Writer) error {
	const op = "flow.WriteCurveCSV"
	if curve == nil {
		return flowerr.New(flowerr.InvalidInput, op, "no curve")
	}
	if err := gocsv.Marshal(curveRows(curve), w); err != nil {
		return flowerr.Wrap(flowerr.InternalError, op, pfx.Err(err), "encoding csv")
	}
	return nil
}

// WriteCSV writes the curve to a CSV file at path.
func WriteCSV(curve *models.TimeVelocityCurve, path string) error {
	const op = "flow.WriteCSV"
	if curve == nil {
		return flowerr.New(flowerr.InvalidInput, op, "no curve")
	}

	f, err := os.Create(path)
	if err != nil {
		return flowerr.Wrap(flowerr.InternalError, op, pfx.Err(err), "opening %s", path)
	}
	if err := WriteCurveCSV(curve, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return flowerr.Wrap(flowerr.InternalError, op, pfx.Err(err), "closing %s", path)
	}
	return nil
}

// SavePlot renders flow rate and mean velocity against time to a PNG.
func SavePlot(curve *models.TimeVelocityCurve, path string) error {
	const op = "flow.SavePlot"
	if curve == nil || len(curve.Measurements) == 0 {
		return flowerr.New(flowerr.InvalidInput, op, "no measurements to plot")
	}

	times := curve.Times()
	flowPts := make(plotter.XYs, 0, len(times))
	meanPts := make(plotter.XYs, 0, len(times))
	for i, m := range curve.Measurements {
		flowPts = append(flowPts, plotter.XY{X: times[i], Y: m.FlowRate})
		meanPts = append(meanPts, plotter.XY{X: times[i], Y: m.MeanVelocity})
	}

	p := plot.New()
	p.Title.Text = "Time-velocity curve"
	p.X.Label.Text = "Time (ms)"
	p.Y.Label.Text = "Flow (mL/s) / Velocity (cm/s)"

	flowLine, err := plotter.NewLine(flowPts)
	if err != nil {
		return flowerr.Wrap(flowerr.InternalError, op, err, "flow line")
	}
	flowLine.Width = vg.Points(1.5)
	p.Add(flowLine)
	p.Legend.Add("flow rate", flowLine)

	meanLine, err := plotter.NewLine(meanPts)
	if err != nil {
		return flowerr.Wrap(flowerr.InternalError, op, err, "velocity line")
	}
	meanLine.Width = vg.Points(1)
	meanLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(meanLine)
	p.Legend.Add("mean velocity", meanLine)

	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return flowerr.Wrap(flowerr.InternalError, op, pfx.Err(err), "saving %s", path)
	}
	return nil
}
