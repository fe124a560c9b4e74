package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/spf13/cobra"
	"github.com/xaionaro-go/screenrec/pkg/buildvars"
	"github.com/xaionaro-go/screenrec/pkg/config"
	"github.com/xaionaro-go/screenrec/pkg/screenshot"
)

var (
	// Access these variables only from a main package:

	Root = &cobra.Command{
		Use: os.Args[0],
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			l := logger.FromCtx(ctx).WithLevel(LoggerLevel)
			ctx = logger.CtxWithLogger(ctx, l)
			cmd.SetContext(ctx)
			logger.Debugf(ctx, "log-level: %v", LoggerLevel)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			logger.Debug(ctx, "end")
		},
	}

	Record = &cobra.Command{
		Use:   "record",
		Short: "record the screen and the played audio until interrupted",
		Args:  cobra.ExactArgs(0),
		Run:   record,
	}

	Config = &cobra.Command{
		Use: "config",
	}

	ConfigDefault = &cobra.Command{
		Use:   "default",
		Short: "print the default config",
		Args:  cobra.ExactArgs(0),
		Run:   configDefault,
	}

	Displays = &cobra.Command{
		Use:   "displays",
		Short: "list the active displays",
		Args:  cobra.ExactArgs(0),
		Run:   displays,
	}

	Version = &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(buildvars.String())
		},
	}

	LoggerLevel = logger.LevelWarning
)

func init() {
	Root.AddCommand(Record)
	Root.AddCommand(Config)
	Config.AddCommand(ConfigDefault)
	Root.AddCommand(Displays)
	Root.AddCommand(Version)

	Root.PersistentFlags().Var(&LoggerLevel, "log-level", "")
	Root.PersistentFlags().String("config", defaultConfigPath(), "the path to the config file")

	Record.Flags().String("output-dir", "", "the directory to write the recording into (overrides the config)")
	Record.Flags().Uint32("fps", 0, "the output frame rate (overrides the config)")
	Record.Flags().Uint("display", 0, "the index of the display to record (overrides the config)")
	Record.Flags().Bool("no-audio", false, "do not record audio")
	Record.Flags().Duration("duration", 0, "stop the recording after this duration (0 means until interrupted)")
	Record.Flags().String("metrics-listen-addr", "", "address to serve Prometheus metrics at (overrides the config)")

	ConfigDefault.Flags().String("output", "", "write the config into this file instead of stdout")
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "screenrec.yaml"
	}
	return filepath.Join(dir, "screenrec", "screenrec.yaml")
}

func assertNoError(ctx context.Context, err error) {
	if err != nil {
		logger.Panic(ctx, err)
	}
}

func loadConfig(cmd *cobra.Command) config.Config {
	ctx := cmd.Context()
	cfgPath, err := cmd.Flags().GetString("config")
	assertNoError(ctx, err)

	cfg, err := config.LoadFile(ctx, cfgPath)
	assertNoError(ctx, err)
	return cfg
}

func configDefault(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()

	output, err := cmd.Flags().GetString("output")
	assertNoError(ctx, err)

	cfg := config.Default()
	if output != "" {
		assertNoError(ctx, config.WriteToPath(ctx, output, cfg))
		return
	}
	_, err = cfg.WriteTo(os.Stdout)
	assertNoError(ctx, err)
}

func displays(cmd *cobra.Command, args []string) {
	n := screenshot.NumActiveDisplays()
	for i := uint(0); i < n; i++ {
		bounds := screenshot.DisplayBounds(i)
		fmt.Printf("%d: %dx%d at %d,%d\n", i, bounds.Dx(), bounds.Dy(), bounds.Min.X, bounds.Min.Y)
	}
}
