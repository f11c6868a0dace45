// Package builder adds elevation-derived attributes to graph tiles: per-edge
// weighted grade, max up/down slopes, and per-shape mean elevation.
package builder

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/graphelev-go/internal/config"
	"github.com/wegman-software/graphelev-go/internal/elevation"
	"github.com/wegman-software/graphelev-go/internal/logger"
	"github.com/wegman-software/graphelev-go/internal/tile"
)

// Build runs the elevation pass over the tile store. When ids is empty the
// full tile set is enumerated and shuffled; shuffling spreads the large
// tiles across workers instead of clustering them in on-disk order.
//
// A missing elevation directory is not an error: elevation is an optional
// stage and the build simply does nothing. Any tile failure aborts the run.
func Build(ctx context.Context, cfg *config.Config, ids []tile.ID) error {
	log := logger.Get()

	if cfg.ElevationDir == "" {
		log.Warn("No elevation storage directory configured, skipping elevation")
		return nil
	}
	if info, err := os.Stat(cfg.ElevationDir); err != nil || !info.IsDir() {
		log.Warn("Elevation storage directory does not exist, skipping elevation",
			zap.String("dir", cfg.ElevationDir))
		return nil
	}

	// One sampler shared read-only by every worker.
	sampler := elevation.NewSampler(cfg.ElevationDir)
	defer sampler.Close()

	store := tile.NewStore(cfg.TileDir, cfg.TileCacheMB)

	workers := cfg.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		workers = 1
	}

	if len(ids) == 0 {
		var err error
		ids, err = store.Enumerate()
		if err != nil {
			return err
		}
		rand.Shuffle(len(ids), func(i, j int) {
			ids[i], ids[j] = ids[j], ids[i]
		})
	}

	log.Info("Adding elevation to tiles",
		zap.Int("tiles", len(ids)),
		zap.Int("workers", workers))

	prog := newProgress(len(ids))
	reporterDone := make(chan struct{})
	defer close(reporterDone)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-reporterDone:
				return
			case <-ticker.C:
				done, pct, rate, eta := prog.snapshot()
				log.Info("Elevation progress",
					zap.Int64("tiles", done),
					zap.Float64("pct", pct),
					zap.Float64("tiles_per_sec", rate),
					zap.Duration("eta", eta))
			}
		}
	}()

	// The channel is the work queue: pre-filled, then closed, so every
	// receive hands out exactly one tile and exhaustion is the closed state.
	queue := make(chan tile.ID, len(ids))
	for _, id := range ids {
		queue <- id
	}
	close(queue)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			// Grade results are cached per worker and reused across its
			// tiles, so no locking is involved.
			cache := make(gradeCache)
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case id, ok := <-queue:
					if !ok {
						return nil
					}
					if err := processTile(store, cache, sampler, id); err != nil {
						return fmt.Errorf("tile %s: %w", id, err)
					}
					prog.increment()
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("Finished adding elevation")
	return nil
}
