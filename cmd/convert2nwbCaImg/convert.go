package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dervinism/convert2nwbCaImg/convert"
	"github.com/dervinism/convert2nwbCaImg/session"
)

func newConvertCmd(root *rootOptions) *cobra.Command {
	var (
		dataDir   string
		outPath   string
		dendrites []string
	)
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert an analysed recording session to an NWB file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger(root.verbose)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			for _, id := range dendrites {
				if _, err := convert.DendriteByID(id); err != nil {
					return usageErrorf("%v", err)
				}
			}
			meta, err := session.Load(root.configPath)
			if err != nil {
				return usageErrorf("%v", err)
			}

			out, err := convert.Run(cmd.Context(), meta, convert.Options{
				DataDir:   dataDir,
				OutPath:   outPath,
				Dendrites: dendrites,
				Logger:    log,
			})
			if err != nil {
				log.Error("conversion failed", zap.Error(err))
				return err
			}
			log.Info("conversion complete",
				zap.String("session", meta.SessionID()),
				zap.String("output", out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", ".",
		"directory holding the analysed MAT-files")
	cmd.Flags().StringVarP(&outPath, "out", "o", "",
		"output file path (default <SessionID>.nwb)")
	cmd.Flags().StringSliceVar(&dendrites, "dendrites", nil,
		"restrict conversion to a subset of regions (bottom, middle, top)")
	return cmd
}
