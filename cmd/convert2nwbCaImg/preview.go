package main

import (
	"math"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/dervinism/convert2nwbCaImg/convert"
	"github.com/dervinism/convert2nwbCaImg/linescan"
	"github.com/dervinism/convert2nwbCaImg/session"
)

func newPreviewCmd(root *rootOptions) *cobra.Command {
	var (
		dataDir string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Plot per-region mean delta-F traces for visual checking",
		Long: `preview renders the mean delta fluorescence of every linescan per dendritic
region into a PNG. It is a quick manual check of a session against the GIN
reference data before running a full conversion.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger(root.verbose)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			meta, err := session.Load(root.configPath)
			if err != nil {
				return usageErrorf("%v", err)
			}

			p := plot.New()
			p.Title.Text = "Mean delta F per linescan, " + meta.SessionID()
			p.X.Label.Text = "linescan"
			p.Y.Label.Text = "delta F (normalised)"

			for _, d := range convert.Dendrites {
				roi, err := convert.LoadROI(dataDir, meta.InputFile(d.Code), d)
				if err != nil {
					log.Error("loading region failed", zap.String("dendrite", d.ID), zap.Error(err))
					return err
				}
				trace := linescan.MeanTrace(roi.DeltaF)
				if err := plotutil.AddLinePoints(p, d.ID, traceXYs(trace)); err != nil {
					return err
				}
				log.Debug("plotted region", zap.String("dendrite", d.ID), zap.Int("linescans", len(trace)))
			}

			if err := p.Save(8*vg.Inch, 5*vg.Inch, outPath); err != nil {
				return err
			}
			log.Info("preview written", zap.String("output", outPath))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", ".",
		"directory holding the analysed MAT-files")
	cmd.Flags().StringVarP(&outPath, "out", "o", "deltaF.png",
		"output PNG path")
	return cmd
}

// traceXYs drops non-finite scans; a fully NaN-padded scan has no mean.
func traceXYs(trace []float64) plotter.XYs {
	var xys plotter.XYs
	for i, v := range trace {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		xys = append(xys, plotter.XY{X: float64(i), Y: v})
	}
	return xys
}
