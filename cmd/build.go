package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/graphelev-go/internal/builder"
	"github.com/wegman-software/graphelev-go/internal/logger"
	"github.com/wegman-software/graphelev-go/internal/metrics"
	"github.com/wegman-software/graphelev-go/internal/tile"
)

var buildTiles []string

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Add elevation attributes to graph tiles",
	Long: `Build computes weighted grade, max slopes, and mean elevation for
every directed edge in the tile store and writes the tiles back in place.

By default every tile in the store is processed, in randomized order so
large tiles spread across workers. Use --tiles to restrict the run to an
explicit subset.`,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.Get()

		if err := cfg.Validate(); err != nil {
			exitWithError("Invalid configuration", err)
		}

		ids := make([]tile.ID, 0, len(buildTiles))
		for _, s := range buildTiles {
			id, err := tile.ParseID(s)
			if err != nil {
				exitWithError("Invalid tile id", err)
			}
			ids = append(ids, id)
		}

		ctx := context.Background()
		if interval := metricsIntervalOrZero(); interval > 0 {
			metricsCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go metrics.NewCollector(interval, log).Start(metricsCtx)
		}

		start := time.Now()
		if err := builder.Build(ctx, cfg, ids); err != nil {
			exitWithError("Elevation build failed", err)
		}
		log.Info("Elevation build complete", zap.Duration("elapsed", time.Since(start)))
	},
}

func init() {
	buildCmd.Flags().StringSliceVar(&buildTiles, "tiles", nil, "Restrict the build to these tile ids (level/index)")
	rootCmd.AddCommand(buildCmd)
}
