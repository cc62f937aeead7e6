package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dervinism/convert2nwbCaImg/nwb"
)

const version = "0.1.0"

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "convert2nwbCaImg",
		Short: "Convert Bristol two-photon linescan recordings to NWB",
		Long: `convert2nwbCaImg converts analysed two-photon calcium imaging data and the
paired intracellular electrophysiology recordings into the Neurodata Without
Borders (NWB) file format.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "session.yaml",
		"session metadata YAML file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"enable debug logging")

	root.AddCommand(newConvertCmd(opts))
	root.AddCommand(newPreviewCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the converter and NWB schema versions",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "convert2nwbCaImg %s (nwb %s)\n", version, nwb.Version)
		},
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}
