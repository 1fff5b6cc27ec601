package main

import (
	"errors"
	"os"
	"time"

	bannercolor "github.com/fatih/color"
	"github.com/imagingearth/phenology/internal/fetch"
	"github.com/spf13/cobra"
)

func newFetchCmd(a *app) *cobra.Command {
	var (
		dir     string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "fetch <urls.txt>",
		Short: "Download granules listed in a file using the Earthdata token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.EarthdataToken == "" {
				return errors.New("EARTHDATA_TOKEN is not set")
			}
			if dir == "" {
				dir = a.cfg.DataDir
			}
			if dir == "" {
				return errors.New("no data directory, use --dir or PHENO_DATA_DIR")
			}

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			urls, err := fetch.ReadURLs(file)
			if err != nil {
				return err
			}

			f := &fetch.Fetcher{
				Client:  fetch.NewTokenClient(cmd.Context(), a.cfg.EarthdataToken),
				Dir:     dir,
				Workers: workers,
				Retries: 3,
				Backoff: 10 * time.Second,
				Log:     a.log,
			}
			report, err := f.Fetch(cmd.Context(), urls)
			if report != nil {
				bannercolor.Green("%d downloaded, %d already present", len(report.Downloaded), len(report.Skipped))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "destination directory (defaults to the configured data directory)")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent downloads")
	return cmd
}
