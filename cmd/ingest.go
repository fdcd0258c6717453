package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/planmatter/heritage-cli/internal/ingest"
)

var (
	ingestURL       string
	ingestShapefile string
	ingestBorough   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load heritage datasets",
	Long:  "Downloads and loads the listed-building and conservation-area datasets into the spatial tables.",
}

var ingestBuildingsCmd = &cobra.Command{
	Use:   "buildings",
	Short: "Load the listed-building dataset",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		url := ingestURL
		if url == "" {
			url = cfg.Ingest.BuildingsURL
		}
		if url == "" {
			return eris.New("no buildings feed configured (set ingest.buildings_url or --url)")
		}

		pool, err := heritagePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		fetcher := ingest.NewFetcher(cfg.Ingest.RatePerSec)
		n, err := ingest.Buildings(ctx, fetcher, pool, url, ingestFilter(), cfg.Ingest.BatchSize)
		if err != nil {
			return eris.Wrap(err, "ingest buildings")
		}

		zap.L().Info("buildings ingested", zap.Int("rows", n))
		return nil
	},
}

var ingestAreasCmd = &cobra.Command{
	Use:   "areas",
	Short: "Load the conservation-area dataset",
	Long:  "Loads conservation areas from the configured GeoJSON feed, or from a local shapefile extract with --shapefile.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		pool, err := heritagePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if ingestShapefile != "" {
			if ingestBorough == "" {
				return eris.New("--borough is required with --shapefile")
			}
			n, err := ingest.AreasFromShapefile(ctx, pool, ingestShapefile, ingestBorough, cfg.Ingest.BatchSize)
			if err != nil {
				return eris.Wrap(err, "ingest areas from shapefile")
			}
			zap.L().Info("areas ingested", zap.Int("rows", n), zap.String("source", ingestShapefile))
			return nil
		}

		url := ingestURL
		if url == "" {
			url = cfg.Ingest.AreasURL
		}
		if url == "" {
			return eris.New("no areas feed configured (set ingest.areas_url, --url, or --shapefile)")
		}

		fetcher := ingest.NewFetcher(cfg.Ingest.RatePerSec)
		n, err := ingest.Areas(ctx, fetcher, pool, url, ingestFilter(), cfg.Ingest.BatchSize)
		if err != nil {
			return eris.Wrap(err, "ingest areas")
		}

		zap.L().Info("areas ingested", zap.Int("rows", n))
		return nil
	},
}

// ingestFilter builds the service-area filter from configuration.
func ingestFilter() ingest.Filter {
	return ingest.Filter{
		MinLat:   cfg.Ingest.MinLat,
		MaxLat:   cfg.Ingest.MaxLat,
		MinLng:   cfg.Ingest.MinLng,
		MaxLng:   cfg.Ingest.MaxLng,
		Boroughs: cfg.Ingest.TargetBoroughs,
	}
}

func init() {
	ingestCmd.PersistentFlags().StringVar(&ingestURL, "url", "", "override the configured feed URL")
	ingestAreasCmd.Flags().StringVar(&ingestShapefile, "shapefile", "", "load from a local shapefile instead of the feed")
	ingestAreasCmd.Flags().StringVar(&ingestBorough, "borough", "", "borough name for shapefile records")

	ingestCmd.AddCommand(ingestBuildingsCmd)
	ingestCmd.AddCommand(ingestAreasCmd)
	rootCmd.AddCommand(ingestCmd)
}
