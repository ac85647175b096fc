package flow

import (
	"fmt"
	"io"
	"os"

	"github.com/carbocation/pfx"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"flow4d/internal/models"
	"flow4d/pkg/flowerr"
)

// WriteChart renders the curve as an interactive HTML line chart with flow
// rate and mean velocity series.
func WriteChart(curve *models.TimeVelocityCurve, w io.Writer) error {
	const op = "flow.WriteChart"
	if curve == nil || len(curve.Measurements) == 0 {
		return flowerr.New(flowerr.InvalidInput, op, "no measurements to chart")
	}

	times := curve.Times()
	labels := make([]string, len(times))
	flowData := make([]opts.LineData, len(times))
	meanData := make([]opts.LineData, len(times))
	for i, m := range curve.Measurements {
		labels[i] = fmt.Sprintf("%.0f", times[i])
		flowData[i] = opts.LineData{Value: m.FlowRate}
		meanData[i] = opts.LineData{Value: m.MeanVelocity}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Time-velocity curve", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Time-velocity curve",
			Subtitle: fmt.Sprintf("SV %.1f mL, RV %.1f mL, RF %.1f%%", curve.StrokeVolume, curve.RegurgitantVolume, curve.RegurgitantFraction),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (ms)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "mL/s, cm/s", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(labels).
		AddSeries("flow rate", flowData).
		AddSeries("mean velocity", meanData)

	if err := line.Render(w); err != nil {
		return flowerr.Wrap(flowerr.InternalError, op, pfx.Err(err), "rendering chart")
	}
	return nil
}

// SaveChart writes the HTML chart of the curve to path.
func SaveChart(curve *models.TimeVelocityCurve, path string) error {
	const op = "flow.SaveChart"

	f, err := os.Create(path)
	if err != nil {
		return flowerr.Wrap(flowerr.InternalError, op, pfx.Err(err), "opening %s", path)
	}
	if err := WriteChart(curve, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return flowerr.Wrap(flowerr.InternalError, op, pfx.Err(err), "closing %s", path)
	}
	return nil
}
