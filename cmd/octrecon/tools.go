package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"octrecon/pkg/calibration"
	"octrecon/pkg/config"
	"octrecon/pkg/fringe"
	"octrecon/pkg/visualization"
)

func newBackgroundCommand(a *app) *cobra.Command {
	var (
		frames int
		out    string
	)
	cmd := &cobra.Command{
		Use:   "background <recording>",
		Short: "Average the first frames of a recording into a new background file",
		Long: "Average the first frames of a recording into a new background. The phase table\n" +
			"of the configured calibration directory is kept; without one the identity table is written.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("frames") {
				cfg.Calibration.BackgroundFrames = frames
			}
			if !cmd.Flags().Changed("out") {
				out = cfg.Calibration.Dir
			}
			aLineSize := cfg.Processing.ALineSize

			reader, err := fringe.Open(args[0], aLineSize)
			if err != nil {
				return err
			}
			bg, err := calibration.BackgroundFromReader(reader, aLineSize, cfg.Calibration.BackgroundFrames)
			if err != nil {
				return err
			}

			base := calibration.Identity(aLineSize)
			if calibration.HasFiles(cfg.Calibration.Dir) {
				base, err = calibration.LoadDir(aLineSize, cfg.Calibration.Dir)
				if err != nil {
					return fmt.Errorf("load calibration: %w", err)
				}
			}
			cal, err := base.WithBackground(bg)
			if err != nil {
				return err
			}
			if err := cal.Save(out); err != nil {
				return err
			}
			a.log.Info().
				Int("frames", min(cfg.Calibration.BackgroundFrames, reader.Len())).
				Str("dir", out).
				Msg("background written")
			return nil
		},
	}
	cmd.Flags().IntVar(&frames, "frames", 10, "number of frames to average")
	cmd.Flags().StringVar(&out, "out", "", "output calibration directory (default: the configured one)")
	return cmd
}

func newCalibPlotCommand(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "calib-plot <dir>",
		Short: "Plot the background and phase table of a calibration directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cal, err := calibration.LoadDir(a.cfg.Processing.ALineSize, args[0])
			if err != nil {
				return err
			}
			if err := visualization.PlotCalibration(cal, out); err != nil {
				return err
			}
			a.log.Info().
				Str("background", out).
				Str("phase", visualization.PhasePlotPath(out)).
				Msg("calibration plots written")
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "calibration.png", "background plot file; the phase plot is written next to it")
	return cmd
}

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a configuration file with default values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			a.log.Info().Str("path", path).Msg("default configuration written")
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
