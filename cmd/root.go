package cmd

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/graphelev-go/internal/config"
	"github.com/wegman-software/graphelev-go/internal/logger"
)

var (
	cfg             = config.DefaultConfig()
	configFile      string
	verbose         bool
	logFile         string
	metricsInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "graphelev",
	Short: "Add elevation attributes to routing graph tiles",
	Long: `graphelev augments a prebuilt routing graph tile set with
elevation-derived attributes: per-edge weighted grade, maximum up and
down slopes, and the mean elevation of each edge shape.

Elevations are read from a directory of SRTM-style .hgt rasters. Tiles
are processed in parallel, each worker owning one tile at a time.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A config file forms the base; explicit flags win over it.
		if configFile != "" {
			fileCfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			applyFlagOverrides(cmd, fileCfg)
			cfg = fileCfg
		}
		if configFile == "" || cmd.Flags().Changed("metrics-interval") {
			cfg.MetricsInterval = config.Duration(metricsInterval)
		}
		cfg.Verbose = verbose
		cfg.LogFile = logFile

		if logFile != "" {
			logger.InitWithFile(verbose, logFile)
		} else {
			logger.Init(verbose)
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&cfg.TileDir, "tile-dir", "t", cfg.TileDir, "Root directory of the graph tile store")
	rootCmd.PersistentFlags().StringVarP(&cfg.ElevationDir, "elevation-dir", "e", cfg.ElevationDir, "Directory holding .hgt elevation rasters")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel tile workers")
	rootCmd.PersistentFlags().IntVar(&cfg.TileCacheMB, "tile-cache-mb", cfg.TileCacheMB, "Tile cache budget in MB before trimming")

	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&metricsInterval, "metrics-interval", cfg.MetricsInterval.Std(), "Interval for system metrics logging (e.g., 10s, 1m)")
}

// applyFlagOverrides copies values of explicitly set flags onto dst.
func applyFlagOverrides(cmd *cobra.Command, dst *config.Config) {
	if cmd.Flags().Changed("tile-dir") {
		dst.TileDir = cfg.TileDir
	}
	if cmd.Flags().Changed("elevation-dir") {
		dst.ElevationDir = cfg.ElevationDir
	}
	if cmd.Flags().Changed("workers") {
		dst.Workers = cfg.Workers
	}
	if cmd.Flags().Changed("tile-cache-mb") {
		dst.TileCacheMB = cfg.TileCacheMB
	}
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	os.Exit(1)
}

// metricsIntervalOrZero guards against negative durations from config files.
func metricsIntervalOrZero() time.Duration {
	if cfg.MetricsInterval < 0 {
		return 0
	}
	return cfg.MetricsInterval.Std()
}
