package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/imagingearth/phenology/internal/notification"
	"github.com/imagingearth/phenology/internal/properties"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type app struct {
	cfg        properties.Config
	log        *logrus.Logger
	configPath string
	logLevel   string
	quiet      bool
}

func printBanner() {
	bannercolor.Cyan(figure.NewFigure("Pheno", "isometric1", true).String())
	fmt.Println()
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "pheno",
		Short:         "Vegetation phenology from MODIS composites and growing degree days",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := properties.LoadEnvFiles(".env", "../.env", "../../.env"); err != nil {
				return err
			}
			cfg, err := properties.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			if cmd.Flags().Changed("log-level") {
				a.cfg.LogLevel = a.logLevel
			}
			level, err := logrus.ParseLevel(a.cfg.LogLevel)
			if err != nil {
				return err
			}
			a.log.SetLevel(level)
			if !a.quiet {
				printBanner()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "do not print the banner")

	root.AddCommand(
		newCompositeCmd(a),
		newGDDCmd(a),
		newSeriesCmd(a),
		newFitCmd(a),
		newFetchCmd(a),
	)
	return root
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	a := &app{cfg: properties.Default(), log: log}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			bannercolor.Red("PANIC: %v", r)
			errMessage := fmt.Sprintf("pheno panic:\n\n%v\n\nStack trace:\n%s", r, debug.Stack())
			d := notification.NewDiscord(a.cfg.DiscordErrorURL, "")
			if err := d.SendError(context.Background(), errMessage); err != nil {
				bannercolor.Red("Failed to send notification: %s", err)
			}
			os.Exit(2)
		}
	}()

	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		bannercolor.Red("Error: %s", err)
		stop()
		os.Exit(1)
	}
}
