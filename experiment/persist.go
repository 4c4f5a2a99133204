package experiment

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"github.com/Noofbiz/sstaGraph/config"
	"github.com/Noofbiz/sstaGraph/persist"
	"github.com/Noofbiz/sstaGraph/report"
	"github.com/Noofbiz/sstaGraph/runlog"
)

// RunPersistence evaluates the persistence baseline on targets for every
// lead time, plots each forecast into outDir and records the scores.
func (r *Runner) RunPersistence(ctx context.Context, targets []float64, trainSplit float64, leadTimes []int, outDir string) ([]*persist.Result, error) {
	results, err := persist.EvaluateLeadTimes(targets, trainSplit, leadTimes)
	if err != nil {
		return nil, err
	}
	metrics := report.NewMetrics()
	split := strconv.FormatFloat(trainSplit, 'f', -1, 64)

	for _, res := range results {
		name := fmt.Sprintf("%s_leadtime_%d_numsample_%d_trainsplit_%s", config.DatasetName, res.LeadTime, len(targets)-res.LeadTime, split)
		r.log().Infow("persistence", "lead_time", res.LeadTime, "mse", res.MSE, "rmse", res.RMSE)

		title := "Persist_" + name + "_MSE_" + roundString(res.MSE, 4)
		path := filepath.Join(outDir, "plot_persist_"+name+".png")
		if err := report.PlotPersistence(path, title, res.Predictions, res.Observed); err != nil {
			r.log().Warnw("persistence plot failed", "lead_time", res.LeadTime, "error", err)
		}
		metrics.ObserveBaseline(res.LeadTime, res.MSE)

		if r.Store != nil {
			run := &runlog.Run{
				Name:     "persist_" + name,
				Kind:     runlog.KindPersistence,
				LeadTime: res.LeadTime,
				NoiseVar: math.NaN(),
				MSE:      res.MSE,
				RMSE:     res.RMSE,
			}
			if err := r.Store.Record(ctx, run); err != nil {
				return nil, err
			}
		}
	}

	if err := metrics.WriteFile(filepath.Join(outDir, "metrics_persist_"+config.DatasetName+".prom")); err != nil {
		r.log().Warnw("metrics file failed", "error", err)
	}
	return results, nil
}
